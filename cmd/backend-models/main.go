// /cmd/backend-models/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/johnayoung/math-consensus/internal/config"
	"github.com/johnayoung/math-consensus/internal/provider"
	"golang.org/x/sync/errgroup"
)

// ModelRecord is one model offered by a configured backend.
type ModelRecord struct {
	Backend    string `json:"backend"`
	ID         string `json:"id"`
	Configured bool   `json:"configured,omitempty"` // the model the backend is set to query
}

func main() {
	var (
		outPath        string
		timeoutSeconds int
	)
	flag.StringVar(&outPath, "out", "", "output file path (defaults to stdout)")
	flag.IntVar(&timeoutSeconds, "timeout", 20, "request timeout in seconds")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	registry, err := provider.NewRosterRegistry(cfg.ProviderSettings())
	if err != nil {
		fmt.Fprintln(os.Stderr, "WARN:", err)
	}
	backends := registry.Backends()
	if len(backends) == 0 {
		fatal(fmt.Errorf("no backends configured"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	results := make([][]ModelRecord, len(backends))
	errs := make([]error, len(backends))
	var g errgroup.Group
	for i, name := range backends {
		g.Go(func() error {
			results[i], errs[i] = listModels(ctx, registry, name)
			return nil
		})
	}
	_ = g.Wait()

	var all []ModelRecord
	for _, recs := range results {
		all = append(all, recs...)
	}

	// Stable ordering
	sort.Slice(all, func(i, j int) bool {
		if all[i].Backend == all[j].Backend {
			return all[i].ID < all[j].ID
		}
		return all[i].Backend < all[j].Backend
	})

	payload, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		fatal(err)
	}

	if outPath == "" {
		_, _ = os.Stdout.Write(payload)
		_, _ = os.Stdout.Write([]byte("\n"))
	} else if err := os.WriteFile(outPath, payload, 0o644); err != nil {
		fatal(err)
	}

	// Non-fatal: partial output is still written.
	var failed []error
	for _, e := range errs {
		if e != nil {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		_, _ = fmt.Fprintln(os.Stderr, "\nWARN: some backends failed:")
		for _, e := range failed {
			_, _ = fmt.Fprintln(os.Stderr, " -", e.Error())
		}
	}
}

func listModels(ctx context.Context, registry *provider.Registry, name string) ([]ModelRecord, error) {
	b, err := registry.Get(name)
	if err != nil {
		return nil, err
	}
	lister, ok := b.Provider.(provider.ModelLister)
	if !ok {
		return nil, fmt.Errorf("%s: model listing not supported", name)
	}

	ids, err := lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	out := make([]ModelRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelRecord{Backend: name, ID: id, Configured: id == b.Model})
	}
	return out, nil
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "ERROR:", err)
	os.Exit(1)
}
