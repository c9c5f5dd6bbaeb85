package evalqa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
	"MemHarness/server"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

// factJudge answers with the first option that appears in the retrieved
// memories of the prompt.
type factJudge struct{ prompts []string }

func (f *factJudge) Name() string  { return "fact" }
func (f *factJudge) Model() string { return "extract" }

func (f *factJudge) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	memories := prompt[strings.Index(prompt, "RETRIEVED MEMORIES:"):strings.Index(prompt, "QUESTION:")]
	options := prompt[strings.Index(prompt, "OPTIONS:"):strings.Index(prompt, "Instructions:")]
	for _, line := range strings.Split(options, "\n") {
		num, text, ok := strings.Cut(line, ". ")
		if ok && text != "" && strings.Contains(memories, text) {
			return "The answer is " + num, nil
		}
	}
	return "no idea", nil
}

type scriptedJudge struct {
	answer string
	err    error
}

func (s scriptedJudge) Name() string  { return "scripted" }
func (s scriptedJudge) Model() string { return "v1" }
func (s scriptedJudge) Complete(context.Context, string) (string, error) {
	return s.answer, s.err
}

type brokenProvisioner struct{}

func (brokenProvisioner) Path() timing.Path { return timing.Embedded }
func (brokenProvisioner) Provision(context.Context, string) (*memclient.Handle, error) {
	return nil, &memclient.ResourceError{Op: "create", Path: "/nope", Err: errors.New("disk full")}
}

func embedded(t *testing.T) memclient.Provisioner {
	return &memclient.EmbeddedProvisioner{BaseDir: t.TempDir()}
}

func postgresItem() Item {
	return Item{
		QuestionID:   "q-pg",
		Question:     "Which database did the team choose for the orders service?",
		Choices:      []string{"MySQL", "PostgreSQL", "MongoDB", "Cassandra"},
		CorrectIndex: 1,
		QuestionType: "single_hop",
		Sessions: []Transcript{
			"Alice: what should we use for the orders service database?\nBob: we decided to use PostgreSQL for the orders service.",
			"Alice: the office moves to Berlin next spring.",
		},
		Summaries: []Transcript{
			"The team chose PostgreSQL as the orders service database.",
			"Office relocation to Berlin was discussed.",
		},
	}
}

func TestParseAnswer(t *testing.T) {
	cases := []struct {
		in     string
		want   int
		parsed bool
	}{
		{"3", 3, true},
		{"The answer is 7.", 7, true},
		{"  0\n", 0, true},
		{"option 4 or 5", 4, true},
		{"no digits here", 0, false},
		{"", 0, false},
		{"٣", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseAnswer(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.parsed, ok, tc.in)
	}
}

func TestBuildUnitsShortSessions(t *testing.T) {
	const k = 4
	var sessions, summaries []Transcript
	for i := 0; i < k; i++ {
		sessions = append(sessions, "short dialogue")
		summaries = append(summaries, "short summary")
	}
	units := BuildUnits(sessions, summaries, DefaultIngestOptions())
	require.Len(t, units, 2*k)

	assert.Equal(t, "Session 1 Summary: short summary", units[0].Content)
	assert.Equal(t, memory.Context, units[0].Type)
	assert.Equal(t, []string{"session_1", "summary"}, units[0].Tags)
	assert.Equal(t, "Session 1: short dialogue", units[1].Content)
	assert.Equal(t, memory.Conversation, units[1].Type)
	assert.Equal(t, []string{"session_1", "dialogue"}, units[1].Tags)
}

func TestBuildUnitsLimits(t *testing.T) {
	long := strings.Repeat("é", 500*12+3)
	units := BuildUnits([]Transcript{Transcript(long), "extra"}, []Transcript{Transcript(strings.Repeat("s", 2500))}, DefaultIngestOptions())

	require.Len(t, units, 11, "summary plus ten chunks; the unpaired session is dropped")
	assert.Equal(t, len("Session 1 Summary: ")+2000, len(units[0].Content))
	for _, u := range units[1:] {
		assert.Equal(t, 500, len([]rune(strings.TrimPrefix(u.Content, "Session 1: "))))
	}

	blank := BuildUnits([]Transcript{"  "}, []Transcript{""}, DefaultIngestOptions())
	assert.Empty(t, blank)
}

func TestBuildContext(t *testing.T) {
	assert.Equal(t, NoMemoriesPlaceholder, BuildContext(nil))
	got := BuildContext([]memory.Memory{{Content: "a"}, {Content: "b"}})
	assert.Equal(t, "[Memory 1]: a\n\n[Memory 2]: b", got)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ctx", "Why?", []string{"x", "y"})
	assert.Contains(t, p, "RETRIEVED MEMORIES:\nctx\n")
	assert.Contains(t, p, "QUESTION: Why?")
	assert.Contains(t, p, "OPTIONS:\n0. x\n1. y\n")
	assert.True(t, strings.HasSuffix(p, "Your answer (single digit 0-9):"))
}

func TestPostgresScenario(t *testing.T) {
	judge := &factJudge{}
	r := NewRunner(judge, embedded(t), Options{})

	res := r.Evaluate(context.Background(), postgresItem())
	require.Empty(t, res.Failed)
	assert.Equal(t, 1, res.PredictedIndex)
	assert.True(t, res.Correct)
	assert.True(t, res.Parsed)
	assert.Equal(t, 4, res.MemoriesStored)
	assert.Equal(t, 4, res.MemoriesRetrieved)
	assert.Greater(t, res.LatencyStoreMs, 0.0)
	require.Len(t, judge.prompts, 1)
	assert.Contains(t, judge.prompts[0], "[Memory 1]:")
}

func TestDefaultZeroIsScoredButFlagged(t *testing.T) {
	it := postgresItem()
	it.CorrectIndex = 0

	res := NewRunner(scriptedJudge{answer: "I cannot tell"}, embedded(t), Options{}).Evaluate(context.Background(), it)
	assert.True(t, res.Correct, "unparsed responses default to index 0")
	assert.False(t, res.Parsed)
	assert.Equal(t, "I cannot tell", res.RawResponse)

	res = NewRunner(scriptedJudge{answer: "0"}, embedded(t), Options{}).Evaluate(context.Background(), it)
	assert.True(t, res.Correct)
	assert.True(t, res.Parsed)
}

func TestJudgeErrorPredictsZero(t *testing.T) {
	res := NewRunner(scriptedJudge{err: errors.New("rate limited")}, embedded(t), Options{}).
		Evaluate(context.Background(), postgresItem())
	assert.Empty(t, res.Failed)
	assert.Equal(t, 0, res.PredictedIndex)
	assert.False(t, res.Correct)
	assert.False(t, res.Parsed)
	assert.Equal(t, "rate limited", res.JudgeError)
}

func TestRunReport(t *testing.T) {
	good := postgresItem()
	other := postgresItem()
	other.QuestionID = "q-2"
	other.QuestionType = "multi_hop"
	other.Choices = []string{"MySQL", "PostgreSQL"}
	bad := postgresItem()
	bad.QuestionID = "q-bad"
	bad.CorrectIndex = 9

	var seen []int
	r := NewRunner(&factJudge{}, embedded(t), Options{
		Progress: func(done, total int, _ Result) {
			assert.Equal(t, 3, total)
			seen = append(seen, done)
		},
	})
	rep, err := r.Run(context.Background(), []Item{good, other, bad})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, "fact", rep.Provider)
	assert.Equal(t, "extract", rep.Model)
	assert.Equal(t, timing.Embedded, rep.Path)
	assert.Equal(t, 3, rep.TotalItems)
	assert.Equal(t, 2, rep.ScoredItems)
	assert.Equal(t, 1, rep.FailedItems)
	assert.Equal(t, 100.0, rep.OverallAccuracy)
	assert.Equal(t, map[string]float64{"multi_hop": 100, "single_hop": 100}, rep.AccuracyByType)
	assert.InDelta(t, 100*(0.25+0.5)/2, rep.RandomBaseline, 1e-9)
	assert.Equal(t, 4.0, rep.AvgMemoriesStored)
	assert.Equal(t, 2, rep.Correct())
	assert.Zero(t, rep.Unparsed)
}

func TestProvisionFailureMarksItemFailed(t *testing.T) {
	rep, err := NewRunner(scriptedJudge{answer: "1"}, brokenProvisioner{}, Options{}).
		Run(context.Background(), []Item{postgresItem()})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.FailedItems)
	assert.Zero(t, rep.ScoredItems)
	assert.Zero(t, rep.OverallAccuracy)
	assert.Contains(t, rep.Results[0].Failed, "disk full")
}

// failingServer serves the real memory API except for failPath, which
// always answers 503.
func failingServer(t *testing.T, failPath string) *httptest.Server {
	t.Helper()
	srv := server.NewHTTPServer(server.Options{DataDir: t.TempDir()})
	api := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == failPath {
			http.Error(w, `{"error":"engine offline"}`, http.StatusServiceUnavailable)
			return
		}
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func TestNetworkFailuresKeepTransportDetail(t *testing.T) {
	cases := []struct {
		name, failPath, prefix string
	}{
		{"ingest", "/api/remember", "ingest unit 0: memclient: remember: status 503"},
		{"recall", "/api/recall", "recall: memclient: recall: status 503"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := failingServer(t, tc.failPath)
			p := &memclient.NetworkProvisioner{Options: memclient.NetworkOptions{BaseURL: ts.URL}}

			rep, err := NewRunner(scriptedJudge{answer: "1"}, p, Options{}).
				Run(context.Background(), []Item{postgresItem()})
			require.NoError(t, err)
			require.Equal(t, 1, rep.FailedItems)
			failed := rep.Results[0].Failed
			assert.True(t, strings.HasPrefix(failed, tc.prefix), failed)
			assert.Contains(t, failed, "engine offline")
			assert.NotContains(t, failed, postgresItem().QuestionID, "not reported as a storage-root failure")
		})
	}
}

func TestIngestErrorIsTransportError(t *testing.T) {
	ts := failingServer(t, "/api/remember")
	h, err := (&memclient.NetworkProvisioner{Options: memclient.NetworkOptions{BaseURL: ts.URL}}).
		Provision(context.Background(), "ingest")
	require.NoError(t, err)
	defer h.Release()

	n, err := Ingest(context.Background(), h.Client, []Unit{{Content: "x", Type: memory.Context}})
	assert.Zero(t, n)
	var te *memclient.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)

	var re *memclient.ResourceError
	assert.False(t, errors.As(err, &re))
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()

	arr := filepath.Join(dir, "items.json")
	require.NoError(t, os.WriteFile(arr, []byte(`[
		{"question_id":"a","question":"q","choices":["x","y"],"correct_choice_index":1,"question_type":"t",
		 "haystack_sessions":[[{"speaker":"Ann","text":"hi"},{"role":"user","content":"yo"}]],
		 "haystack_session_summaries":["sum"]},
		{"question_id":"b","question":"q","choices":["x"],"correct_choice_index":0}
	]`), 0o644))
	items, err := LoadDataset(arr, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Transcript("Ann: hi\nuser: yo"), items[0].Sessions[0])
	assert.Equal(t, Transcript("sum"), items[0].Summaries[0])

	limited, err := LoadDataset(arr, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	lines := filepath.Join(dir, "items.jsonl")
	require.NoError(t, os.WriteFile(lines, []byte(
		`{"question_id":"a","choices":["x"],"correct_choice_index":0}`+"\n\n"+
			`{"question_id":"b","choices":["x"],"correct_choice_index":0}`+"\n"), 0o644))
	items, err = LoadDataset(lines, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = LoadDataset(filepath.Join(dir, "missing.json"), 0)
	assert.Error(t, err)
	_, err = ParseDataset([]byte("  "))
	assert.Error(t, err)
}
