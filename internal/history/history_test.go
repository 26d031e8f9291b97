package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legacyRecord is a record written by the first version of the service:
// no id field and a timezone-less timestamp.
const legacyRecord = `{
  "consensus": {"status": "full_consensus", "confidence": "high", "answer": "4"},
  "explanation": {"best_explanation": "Step 1: 2 + 2 = 4", "model": "claude"},
  "raw_answers": {"chatgpt": "4", "claude": "4", "deepseek": null},
  "raw_responses": {"chatgpt": "answer: 4", "claude": "Step 1: 2 + 2 = 4", "deepseek": "Error: timeout"},
  "timestamp": "2024-03-01T12:00:00.123456",
  "problem_text": "2+2.",
  "available_models": ["chatgpt", "claude", "deepseek"]
}`

func newRecord(t *testing.T, ts time.Time, problem string, pairs ...string) *Record {
	t.Helper()
	var responses consensus.Responses
	for i := 0; i+1 < len(pairs); i += 2 {
		responses.Set(pairs[i], pairs[i+1])
	}
	return &Record{
		Timestamp:       Timestamp{ts},
		ProblemText:     problem,
		AvailableModels: responses.Backends(),
		Result:          *consensus.New().Reconcile(responses),
	}
}

func TestNewID(t *testing.T) {
	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	id := NewID(ts)

	assert.Regexp(t, `^result_20250314_150926_[0-9a-f]{6}$`, id)
	assert.NotEqual(t, id, NewID(ts))
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"result_20250314_150926_abc123", "result_20250314_150926_abc123", false},
		{"result_20250314_150926_abc123.json", "result_20250314_150926_abc123", false},
		{"result_20240301_120000.json", "result_20240301_120000", false},
		{"../etc/passwd", "", true},
		{"result_2025_bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Legacy(t *testing.T) {
	rec, err := Decode([]byte(legacyRecord))
	require.NoError(t, err)

	assert.Equal(t, consensus.StatusFullConsensus, rec.Consensus.Status)
	assert.Equal(t, 2024, rec.Timestamp.Year())
	assert.Equal(t, []string{"chatgpt", "claude", "deepseek"}, rec.RawResponses.Backends())
	require.NotNil(t, rec.Explanation.Best)
	assert.Equal(t, "claude", rec.Explanation.Best.Model)
	deepseek, _ := rec.RawAnswers.Get("deepseek")
	assert.False(t, deepseek.Present())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing consensus", `{"timestamp":"x","problem_text":"p","explanation":"n","raw_answers":{},"raw_responses":{}}`},
		{"bad status", `{"timestamp":"x","problem_text":"p","consensus":{"status":"maybe","confidence":"low"},"explanation":"n","raw_answers":{},"raw_responses":{}}`},
		{"non-string response", `{"timestamp":"x","problem_text":"p","consensus":{"status":"no_models","confidence":"low"},"explanation":"n","raw_answers":{},"raw_responses":{"a":4}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate([]byte(tt.doc)), ErrInvalidRecord)
		})
	}

	assert.NoError(t, Validate([]byte(legacyRecord)))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	inputs := [][]string{
		{"A", "final answer is 4.", "B", "= 4.", "C", "Error: timeout"},
		{"A", "answer: 4", "B", "answer: 5", "C", "answer: 4"},
		{"A", "answer: 4", "B", "answer: 5"},
		{"A", "answer: 7"},
		{},
	}

	for _, pairs := range inputs {
		rec := newRecord(t, time.Now(), "problem", pairs...)
		require.NoError(t, prepare(rec))

		data, err := Encode(rec)
		require.NoError(t, err)
		back, err := Decode(data)
		require.NoError(t, err)

		assert.Equal(t, rec.ID, back.ID)
		assert.Equal(t, rec.Consensus.Status, back.Consensus.Status)
		assert.Equal(t, rec.Consensus.Confidence, back.Consensus.Confidence)
		assert.Equal(t, rec.RawResponses, back.RawResponses)
		assert.True(t, rec.Timestamp.Equal(back.Timestamp.Time))
	}
}

func TestRecord_JSONShape(t *testing.T) {
	rec := newRecord(t, time.Now(), "2+2.", "chatgpt", "answer: 4")
	require.NoError(t, prepare(rec))

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"id", "timestamp", "problem_text", "available_models", "consensus", "explanation", "raw_answers", "raw_responses"} {
		assert.Contains(t, doc, key)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, logger.NewTestLogger(t))
	require.NoError(t, err)

	older := newRecord(t, time.Now().Add(-time.Hour), "1+1.", "a", "answer: 2")
	newer := newRecord(t, time.Now(), "2+2.", "a", "answer: 4", "b", "answer: 5")
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))
	assert.FileExists(t, filepath.Join(dir, newer.ID+".json"))

	// legacy file and a corrupt one alongside
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result_20240301_120000.json"), []byte(legacyRecord), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result_20240302_120000.json"), []byte(`{"broken":`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	t.Run("get", func(t *testing.T) {
		got, err := store.Get(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, "2+2.", got.ProblemText)
		assert.Equal(t, consensus.StatusNoConsensus, got.Consensus.Status)

		legacy, err := store.Get(ctx, "result_20240301_120000.json")
		require.NoError(t, err)
		assert.Equal(t, "result_20240301_120000", legacy.ID)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := store.Get(ctx, "result_20990101_000000_ffffff")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.Get(ctx, "../../etc/passwd")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.Get(ctx, "result_20240302_120000")
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, "low", list[0].Confidence)
		assert.Equal(t, older.ID, list[1].ID)
		assert.Equal(t, "medium", list[1].Confidence)
		assert.Equal(t, "result_20240301_120000", list[2].ID)
	})

	t.Run("all oldest first", func(t *testing.T) {
		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "result_20240301_120000", all[0].ID)
		assert.Equal(t, newer.ID, all[2].ID)
	})
}

func TestFileStore_SaveRejectsBadID(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	rec := newRecord(t, time.Now(), "p", "a", "answer: 1")
	rec.ID = "../escape"
	assert.Error(t, store.Save(context.Background(), rec))
}

func TestOpen_File(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: "file", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file", s.Driver())

	_, err = Open(context.Background(), Options{Driver: "s3"}, nil)
	assert.Error(t, err)
}

func TestSortNewestFirst_Ties(t *testing.T) {
	ts := Timestamp{time.Now()}
	s := []Summary{{ID: "result_a", Timestamp: ts}, {ID: "result_b", Timestamp: ts}}
	sortNewestFirst(s)
	assert.Equal(t, "result_b", s[0].ID)
}
