package evalqa

import (
	"fmt"
	"strings"

	"MemHarness/internal/memory"
)

// NoMemoriesPlaceholder is the context used when recall returns nothing.
const NoMemoriesPlaceholder = "(No relevant memories found)"

// BuildContext formats recalled memories as "[Memory k]: content" blocks
// separated by blank lines.
func BuildContext(memories []memory.Memory) string {
	if len(memories) == 0 {
		return NoMemoriesPlaceholder
	}
	blocks := make([]string, len(memories))
	for i, m := range memories {
		blocks[i] = fmt.Sprintf("[Memory %d]: %s", i+1, m.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt renders the judge prompt for one question.
func BuildPrompt(context, question string, choices []string) string {
	var options strings.Builder
	for i, c := range choices {
		if i > 0 {
			options.WriteByte('\n')
		}
		fmt.Fprintf(&options, "%d. %s", i, c)
	}

	return fmt.Sprintf(`Based on the following conversation memories, answer the multiple choice question.

RETRIEVED MEMORIES:
%s

QUESTION: %s

OPTIONS:
%s

Instructions:
- Read the memories carefully
- Choose the option that best answers the question based on the memories
- Respond with ONLY the option number (0-9), nothing else

Your answer (single digit 0-9):`, context, question, options.String())
}

// ParseAnswer returns the first ASCII digit in text. When there is none it
// returns (0, false); the caller still scores the item with index 0.
func ParseAnswer(text string) (int, bool) {
	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= '0' && c <= '9' {
			return int(c - '0'), true
		}
	}
	return 0, false
}
