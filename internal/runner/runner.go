package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/metrics"
	"github.com/johnayoung/math-consensus/internal/provider"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each backend query.
const DefaultTimeout = 60 * time.Second

// ErrNoBackends is returned when Run is called without any backend.
var ErrNoBackends = errors.New("no backends requested")

// Callbacks receive progress events. Any field may be nil. Callbacks run on
// worker goroutines and must be safe for concurrent use.
type Callbacks struct {
	OnStart    func(backend string)
	OnStream   func(backend, chunk string)
	OnComplete func(backend string)
	OnError    func(backend string, err error)
}

// Result contains the outcomes of querying multiple backends.
type Result struct {
	// Responses holds successful responses in request order.
	Responses []provider.Response
	// Raw maps every requested backend, in request order, to its response
	// text or an error marker.
	Raw            consensus.Responses
	Warnings       []string
	FailedBackends []string
}

// AllFailed reports whether no backend produced a response.
func (r *Result) AllFailed() bool {
	return len(r.Responses) == 0
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers caps the number of concurrent backend queries.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithCallbacks installs progress callbacks.
func WithCallbacks(cb *Callbacks) Option {
	return func(r *Runner) { r.callbacks = cb }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithRequestDefaults sets the system prompt and sampling parameters sent
// with every query.
func WithRequestDefaults(system string, temperature float64, maxTokens int) Option {
	return func(r *Runner) {
		r.system = system
		r.temperature = temperature
		r.maxTokens = maxTokens
	}
}

// Runner orchestrates parallel backend queries.
type Runner struct {
	registry    *provider.Registry
	timeout     time.Duration
	workers     int
	callbacks   *Callbacks
	log         logger.Logger
	system      string
	temperature float64
	maxTokens   int
}

// New creates a runner with the given registry and per-backend timeout.
func New(registry *provider.Registry, timeout time.Duration, opts ...Option) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runner{
		registry:    registry,
		timeout:     timeout,
		callbacks:   &Callbacks{},
		log:         logger.NewNoOpLogger(),
		system:      provider.SystemPrompt,
		temperature: 0.1,
		maxTokens:   2000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run queries all backends concurrently and waits for every one of them.
// Failures never abort the run: a failed or timed-out backend appears in
// Result.Raw as an error marker.
func (r *Runner) Run(ctx context.Context, backends []string, prompt string) (*Result, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	var (
		mu       sync.Mutex
		contents = make([]string, len(backends))
		ok       = make([]*provider.Response, len(backends))
		failures = make([]error, len(backends))
	)

	var g errgroup.Group
	workers := r.workers
	if workers <= 0 {
		workers = len(backends)
	}
	g.SetLimit(workers)

	for i, name := range backends {
		g.Go(func() error {
			resp, err := r.query(ctx, name, prompt)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
				contents[i] = consensus.ErrorMarker(err)
				return nil // best effort
			}
			resp.Backend = name
			ok[i] = &resp
			contents[i] = resp.Content
			return nil
		})
	}

	// Workers never return errors.
	_ = g.Wait()

	result := &Result{}
	for i, name := range backends {
		result.Raw.Set(name, contents[i])
		if failures[i] != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", name, failures[i]))
			result.FailedBackends = append(result.FailedBackends, name)
			continue
		}
		result.Responses = append(result.Responses, *ok[i])
	}

	return result, nil
}

func (r *Runner) query(ctx context.Context, name, prompt string) (provider.Response, error) {
	// Per-backend timeout
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := r.registry.Get(name)
	if err != nil {
		r.fail(name, err)
		return provider.Response{}, err
	}

	if r.callbacks.OnStart != nil {
		r.callbacks.OnStart(name)
	}

	var onChunk provider.StreamCallback
	if r.callbacks.OnStream != nil {
		onChunk = func(chunk string) { r.callbacks.OnStream(name, chunk) }
	}

	start := time.Now()
	resp, err := provider.Stream(ctx, b.Provider, provider.Request{
		Model:       b.Model,
		System:      r.system,
		Prompt:      prompt,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}, onChunk)
	elapsed := time.Since(start)
	metrics.ObserveBackendQuery(name, err, elapsed)

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		r.fail(name, err)
		return provider.Response{}, err
	}

	if resp.Latency == 0 {
		resp.Latency = elapsed
	}
	r.log.Debug("backend responded", map[string]interface{}{
		"backend":    name,
		"model":      b.Model,
		"latency_ms": elapsed.Milliseconds(),
	})
	if r.callbacks.OnComplete != nil {
		r.callbacks.OnComplete(name)
	}
	return resp, nil
}

func (r *Runner) fail(name string, err error) {
	r.log.WithError(err).Warn("backend query failed", map[string]interface{}{"backend": name})
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(name, err)
	}
}
