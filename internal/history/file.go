package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnayoung/math-consensus/internal/logger"
)

// FileStore keeps one indented JSON file per record in a directory.
type FileStore struct {
	dir string
	log logger.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &FileStore{dir: dir, log: log}, nil
}

func (s *FileStore) Driver() string { return "file" }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	// Write to a temp file first so readers never see a partial record.
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+rec.ID+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.ID)); err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Record, error) {
	id, err := CanonicalID(id)
	if err != nil {
		return nil, err
	}
	return s.read(id)
}

func (s *FileStore) read(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	recs, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FileStore) All(ctx context.Context) ([]*Record, error) {
	recs, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(recs)
	return recs, nil
}

func (s *FileStore) readAll(ctx context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	var recs []*Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := CanonicalID(name)
		if err != nil {
			continue
		}
		rec, err := s.read(id)
		if err != nil {
			s.log.WithError(err).Warn("skipping unreadable history record", map[string]interface{}{"id": id})
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
