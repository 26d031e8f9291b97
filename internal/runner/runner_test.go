package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(content string) provider.ProviderFunc {
	return func(ctx context.Context, req provider.Request) (provider.Response, error) {
		return provider.Response{Model: req.Model, Content: content, Provider: "test"}, nil
	}
}

func failing(msg string) provider.ProviderFunc {
	return func(ctx context.Context, req provider.Request) (provider.Response, error) {
		return provider.Response{}, errors.New(msg)
	}
}

func TestRunner_Run(t *testing.T) {
	tests := []struct {
		name         string
		backends     []string
		setup        func(*provider.Registry)
		wantRaw      map[string]string
		wantRespLen  int
		wantFailed   []string
		wantAllFails bool
	}{
		{
			name:     "all backends succeed",
			backends: []string{"chatgpt", "claude"},
			setup: func(r *provider.Registry) {
				r.Register("chatgpt", "gpt", reply("answer: 4"))
				r.Register("claude", "opus", reply("answer: 4"))
			},
			wantRaw:     map[string]string{"chatgpt": "answer: 4", "claude": "answer: 4"},
			wantRespLen: 2,
		},
		{
			name:     "partial failure becomes an error marker",
			backends: []string{"chatgpt", "claude"},
			setup: func(r *provider.Registry) {
				r.Register("chatgpt", "gpt", failing("api error"))
				r.Register("claude", "opus", reply("answer: 5"))
			},
			wantRaw:     map[string]string{"chatgpt": "Error: api error", "claude": "answer: 5"},
			wantRespLen: 1,
			wantFailed:  []string{"chatgpt"},
		},
		{
			name:     "all backends fail",
			backends: []string{"chatgpt", "claude"},
			setup: func(r *provider.Registry) {
				r.Register("chatgpt", "gpt", failing("error a"))
				r.Register("claude", "opus", failing("error b"))
			},
			wantRaw:      map[string]string{"chatgpt": "Error: error a", "claude": "Error: error b"},
			wantFailed:   []string{"chatgpt", "claude"},
			wantAllFails: true,
		},
		{
			name:         "unregistered backend",
			backends:     []string{"mystery"},
			setup:        func(r *provider.Registry) {},
			wantRaw:      map[string]string{"mystery": "Error: unknown backend: mystery"},
			wantFailed:   []string{"mystery"},
			wantAllFails: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := provider.NewRegistry()
			tt.setup(reg)

			r := New(reg, 5*time.Second, WithLogger(logger.NewTestLogger(t)))
			result, err := r.Run(context.Background(), tt.backends, "test prompt")
			require.NoError(t, err)

			assert.Equal(t, tt.backends, result.Raw.Backends())
			for backend, want := range tt.wantRaw {
				got, ok := result.Raw.Get(backend)
				require.True(t, ok, backend)
				assert.Equal(t, want, got, backend)
			}
			assert.Len(t, result.Responses, tt.wantRespLen)
			assert.Equal(t, tt.wantFailed, result.FailedBackends)
			assert.Len(t, result.Warnings, len(tt.wantFailed))
			assert.Equal(t, tt.wantAllFails, result.AllFailed())
		})
	}
}

func TestRunner_NoBackends(t *testing.T) {
	_, err := New(provider.NewRegistry(), time.Second).Run(context.Background(), nil, "p")
	assert.ErrorIs(t, err, ErrNoBackends)
}

func TestRunner_PreservesRequestOrder(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("slow", "m", provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		time.Sleep(50 * time.Millisecond)
		return provider.Response{Content: "slow"}, nil
	}))
	reg.Register("fast", "m", reply("fast"))

	result, err := New(reg, time.Second).Run(context.Background(), []string{"slow", "fast"}, "p")
	require.NoError(t, err)

	assert.Equal(t, []string{"slow", "fast"}, result.Raw.Backends())
	require.Len(t, result.Responses, 2)
	assert.Equal(t, "slow", result.Responses[0].Backend)
	assert.Equal(t, "fast", result.Responses[1].Backend)
}

func TestRunner_Timeout(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("slow", "m", provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		select {
		case <-ctx.Done():
			return provider.Response{}, ctx.Err()
		case <-time.After(10 * time.Second):
			return provider.Response{Content: "too slow"}, nil
		}
	}))
	reg.Register("quick", "m", reply("answer: 1"))

	result, err := New(reg, 100*time.Millisecond).Run(context.Background(), []string{"slow", "quick"}, "test")
	require.NoError(t, err)

	raw, _ := result.Raw.Get("slow")
	assert.True(t, consensus.IsErrorMarker(raw))
	assert.Contains(t, raw, context.DeadlineExceeded.Error())
	assert.Equal(t, []string{"slow"}, result.FailedBackends)
}

func TestRunner_IgnoredDeadlineIsDiscarded(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("stubborn", "m", provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		time.Sleep(150 * time.Millisecond)
		return provider.Response{Content: "late answer"}, nil
	}))

	result, err := New(reg, 50*time.Millisecond).Run(context.Background(), []string{"stubborn"}, "p")
	require.NoError(t, err)

	raw, _ := result.Raw.Get("stubborn")
	assert.True(t, consensus.IsErrorMarker(raw))
	assert.True(t, result.AllFailed())
}

func TestRunner_WorkerLimit(t *testing.T) {
	var active, peak int32
	busy := provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return provider.Response{Content: "ok"}, nil
	})

	reg := provider.NewRegistry()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		reg.Register(n, "m", busy)
	}

	_, err := New(reg, time.Second, WithWorkers(2)).Run(context.Background(), names, "p")
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunner_RequestDefaults(t *testing.T) {
	var got provider.Request
	reg := provider.NewRegistry()
	reg.Register("chatgpt", "gpt-3.5-turbo", provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		got = req
		return provider.Response{Content: "ok"}, nil
	}))

	_, err := New(reg, time.Second, WithRequestDefaults("be precise", 0.3, 100)).
		Run(context.Background(), []string{"chatgpt"}, "1+1?")
	require.NoError(t, err)

	assert.Equal(t, provider.Request{
		Model:       "gpt-3.5-turbo",
		System:      "be precise",
		Prompt:      "1+1?",
		Temperature: 0.3,
		MaxTokens:   100,
	}, got)
}

func TestRunner_Callbacks(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("ok", "m", reply("answer: 2"))
	reg.Register("bad", "m", failing("boom"))

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	cb := &Callbacks{
		OnStart:    func(b string) { record("start:" + b) },
		OnStream:   func(b, chunk string) { record("stream:" + b + ":" + chunk) },
		OnComplete: func(b string) { record("complete:" + b) },
		OnError:    func(b string, err error) { record("error:" + b + ":" + err.Error()) },
	}

	_, err := New(reg, time.Second, WithCallbacks(cb)).Run(context.Background(), []string{"ok", "bad"}, "p")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"start:ok", "stream:ok:answer: 2", "complete:ok",
		"start:bad", "error:bad:boom",
	}, events)
}
