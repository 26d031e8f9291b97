package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/johnayoung/math-consensus/internal/analysis"
	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/runner"
	"github.com/johnayoung/math-consensus/internal/server"
	"github.com/johnayoung/math-consensus/internal/solver"
	"github.com/johnayoung/math-consensus/internal/ui"
)

func runSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	var (
		image      = fs.String("image", "", "Read the problem from an image file (OCR)")
		file       = fs.String("file", "", "Read the problem from a text file")
		jsonOutput = fs.Bool("json", false, "Print the record as JSON to stdout (no interactive display)")
		noSave     = fs.Bool("no-save", false, "Don't save the result to history")
		quiet      bool
	)
	fs.BoolVar(&quiet, "quiet", false, "Suppress progress output")
	fs.BoolVar(&quiet, "q", false, "Suppress progress output (shorthand)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	req := solver.Request{ImagePath: *image, NoSave: *noSave}
	if req.ImagePath == "" {
		text, err := getProblem(fs.Args(), *file)
		if err != nil {
			return err
		}
		req.Text = text
	}

	// Show UI only on an interactive terminal without quiet or JSON output.
	showUI := ui.IsTerminal(os.Stderr) && !quiet && !*jsonOutput

	a, err := setup(showUI)
	if err != nil {
		return err
	}

	var store history.Store
	if !req.NoSave {
		store, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	backends := a.cfg.AvailableBackends()
	progress := ui.NewProgress(os.Stderr, backends, !showUI)
	svc := a.newService(store, &runner.Callbacks{
		OnStart:    progress.BackendStarted,
		OnStream:   progress.BackendStreaming,
		OnComplete: progress.BackendCompleted,
		OnError:    progress.BackendFailed,
	})

	if showUI {
		header := req.Text
		if req.ImagePath != "" {
			header = "image " + req.ImagePath
		}
		ui.PrintHeader(os.Stderr, header)
		ui.PrintPhase(os.Stderr, "Querying backends...")
		fmt.Fprintln(os.Stderr)
	}

	start := time.Now()
	progress.Start()
	rec, err := svc.Solve(ctx, req)
	progress.Stop()

	if err != nil && rec == nil {
		return err
	}
	if err != nil {
		// Only persistence failed; the verdict is still worth printing.
		ui.PrintError(os.Stderr, err.Error())
	}

	if *jsonOutput || !showUI {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	ui.PrintVerdict(os.Stdout, rec)
	failed := 0
	for _, raw := range rec.RawResponses.All() {
		if consensus.IsErrorMarker(raw) {
			failed++
		}
	}
	ui.PrintSummary(os.Stderr, rec.RawResponses.Len(), failed, time.Since(start))
	if store != nil && err == nil {
		ui.PrintSuccess(os.Stderr, fmt.Sprintf("Saved as %s", rec.ID))
	}
	return nil
}

// getProblem reads the problem from positional args, then file, then stdin.
func getProblem(args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading problem file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.Join(lines, "\n"), nil
	}

	return "", fmt.Errorf("no problem provided: use positional arguments, --file, --image, or pipe to stdin")
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "Listen address (overrides server.addr)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := setup(false)
	if err != nil {
		return err
	}
	if *addr != "" {
		a.cfg.Server.Addr = *addr
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := a.newService(store, nil)
	if len(svc.Backends()) == 0 {
		a.log.Warn("no backends configured; submissions will be rejected", nil)
	}

	srv := server.New(server.Settings{
		Addr:           a.cfg.Server.Addr,
		UploadDir:      a.cfg.Server.UploadDir,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   writeTimeout(a.cfg.Runner.Timeout),
	}, svc, store, server.WithLogger(a.log))
	return srv.ListenAndServe(ctx)
}

// writeTimeout leaves room for a full backend round plus OCR.
func writeTimeout(runnerTimeoutMs int) time.Duration {
	return time.Duration(runnerTimeoutMs)*time.Millisecond + 60*time.Second
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Print JSON instead of a table")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := setup(true)
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if id := fs.Arg(0); id != "" {
		rec, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if *jsonOutput || !ui.IsTerminal(os.Stdout) {
			return enc.Encode(rec)
		}
		ui.PrintHeader(os.Stdout, rec.ProblemText)
		ui.PrintVerdict(os.Stdout, rec)
		return nil
	}

	list, err := store.List(ctx)
	if err != nil {
		return err
	}
	if *jsonOutput {
		if list == nil {
			list = []history.Summary{}
		}
		return enc.Encode(list)
	}
	ui.PrintHistory(os.Stdout, list)
	return nil
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	formatStr := fs.String("format", "markdown", "Report format: markdown, json or yaml")
	out := fs.String("out", "", "Write the report to a file instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	format, err := analysis.ParseFormat(*formatStr)
	if err != nil {
		return err
	}

	a, err := setup(true)
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.All(ctx)
	if err != nil {
		return err
	}
	report := analysis.Analyze(records, time.Now())

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := analysis.Write(w, report, format); err != nil {
		return err
	}
	if *out != "" {
		a.log.Info("report written", map[string]interface{}{"path": *out, "records": report.Total})
	}
	return nil
}
