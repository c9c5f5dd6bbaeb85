// Package evalqa scores retrieval-augmented multiple-choice answering: each
// item's transcripts are ingested into a fresh memory instance, the question
// is used as a recall query and a language model picks an option.
package evalqa

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Item is one LoCoMo-MC10 style question.
type Item struct {
	QuestionID   string       `json:"question_id"`
	Question     string       `json:"question"`
	Choices      []string     `json:"choices"`
	CorrectIndex int          `json:"correct_choice_index"`
	QuestionType string       `json:"question_type"`
	Sessions     []Transcript `json:"haystack_sessions"`
	Summaries    []Transcript `json:"haystack_session_summaries"`
}

// Transcript is a session or summary. In the dataset it is either a plain
// string or a list of turns; turns are flattened to "speaker: text" lines.
type Transcript string

func (t *Transcript) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Transcript(s)
		return nil
	}

	var turns []json.RawMessage
	if err := json.Unmarshal(data, &turns); err != nil {
		return fmt.Errorf("transcript: expected string or list of turns: %w", err)
	}
	lines := make([]string, 0, len(turns))
	for _, raw := range turns {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			lines = append(lines, s)
			continue
		}
		var turn struct {
			Speaker string `json:"speaker"`
			Role    string `json:"role"`
			Text    string `json:"text"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &turn); err != nil {
			return fmt.Errorf("transcript: bad turn: %w", err)
		}
		who := firstNonEmpty(turn.Speaker, turn.Role)
		text := firstNonEmpty(turn.Text, turn.Content)
		if who != "" {
			text = who + ": " + text
		}
		lines = append(lines, text)
	}
	*t = Transcript(strings.Join(lines, "\n"))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate reports items that cannot be scored.
func (it Item) Validate() error {
	if len(it.Choices) == 0 {
		return fmt.Errorf("item %s: no choices", it.QuestionID)
	}
	if it.CorrectIndex < 0 || it.CorrectIndex >= len(it.Choices) {
		return fmt.Errorf("item %s: correct index %d out of range", it.QuestionID, it.CorrectIndex)
	}
	return nil
}

// LoadDataset reads a JSON array or JSON Lines file of items. A positive
// limit keeps only the first limit items.
func LoadDataset(path string, limit int) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	items, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ParseDataset decodes a JSON array or JSON Lines document.
func ParseDataset(data []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty dataset")
	}

	if trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to parse JSON array: %w", err)
		}
		return items, nil
	}

	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var it Item
		if err := json.Unmarshal(text, &it); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, it)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
