// Package solver turns a submitted problem into a reconciled, persisted
// history record.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/metrics"
	"github.com/johnayoung/math-consensus/internal/ocr"
	"github.com/johnayoung/math-consensus/internal/problem"
	"github.com/johnayoung/math-consensus/internal/runner"
)

var (
	// ErrNoBackends is returned when no backend is configured.
	ErrNoBackends = errors.New("no AI backends available; configure at least one API key")
	// ErrEmptyProblem is returned when neither text nor image yields a problem.
	ErrEmptyProblem = errors.New("no problem image or text provided")
)

// Querier fans a prompt out to backends.
type Querier interface {
	Run(ctx context.Context, backends []string, prompt string) (*runner.Result, error)
}

// Recognizer reads problem text from an image file.
type Recognizer interface {
	Process(ctx context.Context, path string) (string, error)
}

// Request is one problem submission. ImagePath takes precedence over Text.
type Request struct {
	Text      string
	ImagePath string
	// NoSave skips persistence for this request.
	NoSave bool
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists every solved problem to s.
func WithStore(s history.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithOCR enables image submissions.
func WithOCR(r Recognizer) Option {
	return func(svc *Service) { svc.ocr = r }
}

// WithVerifier replaces the default verifier.
func WithVerifier(v *consensus.Verifier) Option {
	return func(svc *Service) { svc.verifier = v }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// Service solves problems against a fixed set of backends.
type Service struct {
	querier  Querier
	backends []string
	verifier *consensus.Verifier
	store    history.Store
	ocr      Recognizer
	log      logger.Logger
	now      func() time.Time
}

// New creates a Service querying backends, in that order, through q.
func New(q Querier, backends []string, opts ...Option) *Service {
	s := &Service{
		querier:  q,
		backends: backends,
		verifier: consensus.New(),
		log:      logger.NewNoOpLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backends returns the backends every problem is sent to.
func (s *Service) Backends() []string {
	return s.backends
}

// Store returns the configured history store, or nil.
func (s *Service) Store() history.Store {
	return s.store
}

// Solve acquires and prepares the problem, queries every backend,
// reconciles the responses and saves the record.
//
// When only persistence fails, the record is returned together with the
// error.
func (s *Service) Solve(ctx context.Context, req Request) (*history.Record, error) {
	start := time.Now()

	raw := req.Text
	if req.ImagePath != "" {
		if s.ocr == nil {
			return nil, fmt.Errorf("reading problem image: %w", ocr.ErrNoEngine)
		}
		text, err := s.ocr.Process(ctx, req.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("reading problem image: %w", err)
		}
		raw = text
	}

	p, err := problem.Prepare(raw)
	if errors.Is(err, problem.ErrEmpty) {
		return nil, ErrEmptyProblem
	}
	if err != nil {
		return nil, err
	}

	if len(s.backends) == 0 {
		return nil, ErrNoBackends
	}

	res, err := s.querier.Run(ctx, s.backends, p.Prompt())
	if errors.Is(err, runner.ErrNoBackends) {
		return nil, ErrNoBackends
	}
	if err != nil {
		return nil, fmt.Errorf("querying backends: %w", err)
	}

	result := s.verifier.Reconcile(res.Raw)
	metrics.ObserveReconciliation(string(result.Consensus.Status), string(result.Consensus.Confidence))

	ts := s.now()
	rec := &history.Record{
		ID:              history.NewID(ts),
		Timestamp:       history.Timestamp{Time: ts},
		ProblemText:     p.Text,
		AvailableModels: append([]string(nil), s.backends...),
		Result:          *result,
	}

	log := s.log.With(map[string]interface{}{
		"id":         rec.ID,
		"status":     result.Consensus.Status,
		"confidence": result.Consensus.Confidence,
		"failed":     len(res.FailedBackends),
		"latency_ms": time.Since(start).Milliseconds(),
	})

	if s.store != nil && !req.NoSave {
		err := s.store.Save(ctx, rec)
		metrics.ObserveHistorySave(s.store.Driver(), err)
		if err != nil {
			log.WithError(err).Error("failed to save history record", nil)
			return rec, fmt.Errorf("saving history: %w", err)
		}
	}

	log.Info("problem reconciled", nil)
	return rec, nil
}
