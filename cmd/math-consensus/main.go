package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/johnayoung/math-consensus/internal/config"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/ocr"
	"github.com/johnayoung/math-consensus/internal/provider"
	"github.com/johnayoung/math-consensus/internal/runner"
	"github.com/johnayoung/math-consensus/internal/solver"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `Usage: math-consensus <command> [flags]

Commands:
  solve     Solve a problem with every configured backend and reconcile the answers
  serve     Run the HTTP API
  history   List past problems, or print one record by ID
  analyze   Report statistics over the history
  version   Print version information

Run 'math-consensus <command> -h' for command flags.
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errUsage
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "solve":
		return runSolve(ctx, rest)
	case "serve":
		return runServe(ctx, rest)
	case "history":
		return runHistory(ctx, rest)
	case "analyze":
		return runAnalyze(ctx, rest)
	case "version", "--version", "-version":
		printVersion()
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

func printVersion() {
	fmt.Printf("math-consensus %s\n", getVersion())
	fmt.Printf("  commit: %s\n", commit)
	fmt.Printf("  built:  %s\n", date)
}

// getVersion returns the version string, using build info as fallback.
func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// parseFlags parses a subcommand's flags, turning -h into a clean exit.
func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return errUsage
	}
	return nil
}

// app holds what every command needs.
type app struct {
	cfg *config.Config
	log logger.Logger
}

// setup loads configuration and builds the logger. quietLogs raises an
// "info" level to "warn" so logs do not interleave with terminal output.
func setup(quietLogs bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if quietLogs && (level == "" || level == "info") {
		level = "warn"
	}
	log, err := logger.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfg.EnvFile != "" {
		log.Debug("loaded env file", map[string]interface{}{"path": cfg.EnvFile})
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openStore(ctx context.Context) (history.Store, error) {
	store, err := history.Open(ctx, a.cfg.HistoryOptions(), a.log)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return store, nil
}

// newService wires backends, runner, OCR and store into a solver. store
// may be nil.
func (a *app) newService(store history.Store, callbacks *runner.Callbacks) *solver.Service {
	registry, err := provider.NewRosterRegistry(a.cfg.ProviderSettings())
	if err != nil {
		a.log.WithError(err).Warn("some backends could not be initialized", nil)
	}

	runOpts := []runner.Option{
		runner.WithWorkers(a.cfg.Runner.Workers),
		runner.WithLogger(a.log),
		runner.WithRequestDefaults(provider.SystemPrompt, a.cfg.Runner.Temperature, a.cfg.Runner.MaxTokens),
	}
	if callbacks != nil {
		runOpts = append(runOpts, runner.WithCallbacks(callbacks))
	}
	r := runner.New(registry, config.GetDuration(a.cfg.Runner.Timeout), runOpts...)

	opts := []solver.Option{solver.WithLogger(a.log)}
	if store != nil {
		opts = append(opts, solver.WithStore(store))
	}
	if proc := ocr.NewProcessor(a.log, a.cfg.OCREngines(a.log)...); proc.Available() {
		opts = append(opts, solver.WithOCR(proc))
	}

	backends := registry.Backends()
	a.log.Debug("backends configured", map[string]interface{}{"backends": backends})
	return solver.New(r, backends, opts...)
}
