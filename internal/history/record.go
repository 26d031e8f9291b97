// Package history persists reconciliation results so they can be listed,
// fetched by ID and analyzed later.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/math-consensus/internal/consensus"
)

var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("history item not found")
	// ErrInvalidRecord is returned when a stored record cannot be decoded.
	ErrInvalidRecord = errors.New("invalid history record")
)

// Record is one reconciled problem as stored in history.
type Record struct {
	ID              string    `json:"id"`
	Timestamp       Timestamp `json:"timestamp"`
	ProblemText     string    `json:"problem_text"`
	AvailableModels []string  `json:"available_models"`
	consensus.Result
}

// Summary is the listing view of a Record.
type Summary struct {
	ID          string    `json:"id"`
	Timestamp   Timestamp `json:"timestamp"`
	ProblemText string    `json:"problem_text"`
	Confidence  string    `json:"confidence"`
}

// Summary returns the listing view of r.
func (r *Record) Summary() Summary {
	confidence := string(r.Consensus.Confidence)
	if confidence == "" {
		confidence = "unknown"
	}
	return Summary{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		ProblemText: r.ProblemText,
		Confidence:  confidence,
	}
}

// Store persists records.
type Store interface {
	// Save stores rec, assigning an ID when it has none.
	Save(ctx context.Context, rec *Record) error
	// Get returns the record with the given ID, ErrNotFound or ErrInvalidRecord.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns summaries of all readable records, newest first.
	List(ctx context.Context) ([]Summary, error)
	// All returns every readable record, oldest first.
	All(ctx context.Context) ([]*Record, error)
	Driver() string
	Close() error
}

const idPrefix = "result_"

// Legacy IDs carry no random suffix.
var idPattern = regexp.MustCompile(`^result_\d{8}_\d{6}(?:_[0-9a-f]{6})?$`)

// NewID derives a record ID from its timestamp plus a short random suffix.
func NewID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return idPrefix + t.Format("20060102_150405") + "_" + suffix
}

// CanonicalID strips a trailing ".json" and validates the ID shape.
func CanonicalID(id string) (string, error) {
	id = strings.TrimSuffix(id, ".json")
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return id, nil
}

func prepare(rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = Timestamp{time.Now()}
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.Timestamp.Time)
	}
	if _, err := CanonicalID(rec.ID); err != nil {
		return fmt.Errorf("invalid record id: %w", err)
	}
	return nil
}

// Encode validates and serializes rec.
func Encode(rec *Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode validates data against the record schema and decodes it.
func Decode(data []byte) (*Record, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &rec, nil
}

func sortNewestFirst(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].Timestamp.Equal(s[j].Timestamp.Time) {
			return s[i].Timestamp.After(s[j].Timestamp.Time)
		}
		return s[i].ID > s[j].ID
	})
}

func sortOldestFirst(r []*Record) {
	sort.SliceStable(r, func(i, j int) bool {
		if !r[i].Timestamp.Equal(r[j].Timestamp.Time) {
			return r[i].Timestamp.Before(r[j].Timestamp.Time)
		}
		return r[i].ID < r[j].ID
	})
}

// Timestamp is a time that also decodes timezone-less ISO 8601 values.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON accepts RFC 3339 and local ISO 8601 timestamps.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*t = Timestamp{parsed}
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
