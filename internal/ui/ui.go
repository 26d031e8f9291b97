package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/history"
)

// Color codes for terminal output.
const (
	Reset      = "\033[0m"
	Bold       = "\033[1m"
	Dim        = "\033[2m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Blue       = "\033[34m"
	Cyan       = "\033[36m"
	Red        = "\033[31m"
	BoldGreen  = "\033[1;32m"
	BoldYellow = "\033[1;33m"
	BoldRed    = "\033[1;31m"
	BoldCyan   = "\033[1;36m"
)

// BackendStatus is the state of one backend query.
type BackendStatus int

const (
	StatusPending BackendStatus = iota
	StatusRunning
	StatusStreaming
	StatusComplete
	StatusFailed
)

// BackendState holds the progress of a single backend query.
type BackendState struct {
	Backend   string
	Status    BackendStatus
	StartTime time.Time
	EndTime   time.Time
	Error     error
	CharCount int
}

// Progress displays live progress of backend queries.
type Progress struct {
	mu        sync.Mutex
	w         io.Writer
	backends  map[string]*BackendState
	order     []string
	startTime time.Time
	ticker    *time.Ticker
	done      chan struct{}
	quiet     bool
	rendered  bool
}

// NewProgress creates a progress display for backends. A quiet display
// records state but never draws.
func NewProgress(w io.Writer, backends []string, quiet bool) *Progress {
	p := &Progress{
		w:         w,
		backends:  make(map[string]*BackendState),
		order:     backends,
		startTime: time.Now(),
		done:      make(chan struct{}),
		quiet:     quiet,
	}
	for _, b := range backends {
		p.backends[b] = &BackendState{Backend: b, Status: StatusPending}
	}
	return p
}

// Start begins the refresh loop.
func (p *Progress) Start() {
	if p.quiet {
		return
	}

	p.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.render()
			case <-p.done:
				return
			}
		}
	}()
	p.render()
}

// Stop ends the display and erases it.
func (p *Progress) Stop() {
	if p.quiet {
		return
	}

	close(p.done)
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
}

// State returns a copy of the backend's current state.
func (p *Progress) State(backend string) (BackendState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.backends[backend]
	if !ok {
		return BackendState{}, false
	}
	return *s, true
}

func (p *Progress) update(backend string, fn func(*BackendState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.backends[backend]; ok {
		fn(s)
	}
}

func (p *Progress) BackendStarted(backend string) {
	p.update(backend, func(s *BackendState) {
		s.Status = StatusRunning
		s.StartTime = time.Now()
	})
}

func (p *Progress) BackendStreaming(backend, chunk string) {
	p.update(backend, func(s *BackendState) {
		s.Status = StatusStreaming
		s.CharCount += len(chunk)
	})
}

func (p *Progress) BackendCompleted(backend string) {
	p.update(backend, func(s *BackendState) {
		s.Status = StatusComplete
		s.EndTime = time.Now()
	})
}

func (p *Progress) BackendFailed(backend string, err error) {
	p.update(backend, func(s *BackendState) {
		s.Status = StatusFailed
		s.EndTime = time.Now()
		s.Error = err
	})
}

func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rendered {
		p.clearLines(len(p.order) + 2)
	}
	p.rendered = true

	fmt.Fprintf(p.w, "%s⚡ Querying %d backends%s %s(%.1fs)%s\n",
		BoldCyan, len(p.order), Reset,
		Dim, time.Since(p.startTime).Seconds(), Reset)
	for _, b := range p.order {
		p.renderLine(p.backends[b])
	}
	fmt.Fprintln(p.w)
}

func (p *Progress) renderLine(s *BackendState) {
	var icon, color, status string

	switch s.Status {
	case StatusPending:
		icon, color, status = "○", Dim, "pending"
	case StatusRunning:
		icon, color = spinner(time.Now()), Yellow
		status = fmt.Sprintf("connecting... %.1fs", time.Since(s.StartTime).Seconds())
	case StatusStreaming:
		icon, color = spinner(time.Now()), Cyan
		status = fmt.Sprintf("streaming %d chars %.1fs", s.CharCount, time.Since(s.StartTime).Seconds())
	case StatusComplete:
		icon, color = "✓", Green
		status = fmt.Sprintf("done in %.1fs", s.EndTime.Sub(s.StartTime).Seconds())
	case StatusFailed:
		icon, color = "✗", Red
		status = fmt.Sprintf("failed: %v", s.Error)
	}

	fmt.Fprintf(p.w, "  %s%s%s %-10s %s%s%s\n", color, icon, Reset, s.Backend, color, status, Reset)
}

func (p *Progress) clearLines(n int) {
	for i := 0; i < n; i++ {
		fmt.Fprintf(p.w, "\033[A\033[K")
	}
}

func spinner(t time.Time) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return frames[int(t.UnixMilli()/100)%len(frames)]
}

// truncate shortens s to max runes on a single line.
func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

// PrintHeader prints the problem banner.
func PrintHeader(w io.Writer, problem string) {
	fmt.Fprintf(w, "\n%s╭─ Math Consensus ─╮%s\n", BoldCyan, Reset)
	fmt.Fprintf(w, "%s│%s Problem: %s%s%s\n", Cyan, Reset, Dim, truncate(problem, 60), Reset)
	fmt.Fprintf(w, "%s╰──────────────────╯%s\n\n", Cyan, Reset)
}

// PrintPhase prints a phase header.
func PrintPhase(w io.Writer, phase string) {
	fmt.Fprintf(w, "%s▸ %s%s\n", BoldYellow, phase, Reset)
}

// PrintSuccess prints a success message.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s✓ %s%s\n", Green, msg, Reset)
}

// PrintError prints an error message.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s✗ %s%s\n", Red, msg, Reset)
}

func confidenceColor(c consensus.Confidence) string {
	switch c {
	case consensus.ConfidenceHigh:
		return BoldGreen
	case consensus.ConfidenceMedium:
		return BoldYellow
	default:
		return BoldRed
	}
}

// PrintVerdict renders a reconciled record: verdict, per-backend answers
// and the selected explanation.
func PrintVerdict(w io.Writer, rec *history.Record) {
	v := rec.Consensus
	color := confidenceColor(v.Confidence)

	fmt.Fprintf(w, "\n%s╔═══ VERDICT ═══╗%s\n", color, Reset)
	fmt.Fprintf(w, "%s║%s Status:     %s\n", color, Reset, v.Status)
	fmt.Fprintf(w, "%s║%s Confidence: %s%s%s\n", color, Reset, color, v.Confidence, Reset)
	if v.Answer != nil {
		fmt.Fprintf(w, "%s║%s Answer:     %s%s%s\n", color, Reset, Bold, *v.Answer, Reset)
	}
	if v.Model != "" {
		fmt.Fprintf(w, "%s║%s Backend:    %s\n", color, Reset, v.Model)
	}
	if len(v.AgreeingModels) > 0 {
		fmt.Fprintf(w, "%s║%s Agreeing:   %s\n", color, Reset, strings.Join(v.AgreeingModels, ", "))
	}
	fmt.Fprintf(w, "%s╚═══════════════╝%s\n", color, Reset)

	fmt.Fprintf(w, "\n%sAnswers%s\n", Bold, Reset)
	for backend, answer := range rec.RawAnswers.All() {
		if a, ok := answer.Get(); ok {
			fmt.Fprintf(w, "  %-10s %s\n", backend, a)
			continue
		}
		raw, _ := rec.RawResponses.Get(backend)
		if consensus.IsErrorMarker(raw) {
			fmt.Fprintf(w, "  %-10s %s%s%s\n", backend, Red, truncate(raw, 60), Reset)
		} else {
			fmt.Fprintf(w, "  %-10s %s(no answer)%s\n", backend, Dim, Reset)
		}
	}

	if best := rec.Explanation.Best; best != nil {
		fmt.Fprintf(w, "\n%s┌─ Explanation (%s) ─┐%s\n", Blue, best.Model, Reset)
		for _, line := range strings.Split(best.Text, "\n") {
			fmt.Fprintf(w, "%s│%s %s\n", Blue, Reset, line)
		}
		fmt.Fprintf(w, "%s└──────────────────┘%s\n", Blue, Reset)
	}
}

// PrintHistory lists summaries newest first.
func PrintHistory(w io.Writer, list []history.Summary) {
	if len(list) == 0 {
		fmt.Fprintf(w, "%sNo history yet.%s\n", Dim, Reset)
		return
	}
	for _, s := range list {
		color := confidenceColor(consensus.Confidence(s.Confidence))
		fmt.Fprintf(w, "%s  %s  %s%-7s%s  %s\n",
			s.ID, s.Timestamp.Format("2006-01-02 15:04"),
			color, s.Confidence, Reset, truncate(s.ProblemText, 50))
	}
}

// PrintSummary prints a summary of the run.
func PrintSummary(w io.Writer, total, failed int, totalTime time.Duration) {
	fmt.Fprintf(w, "\n%s─── Summary ───%s\n", Dim, Reset)
	fmt.Fprintf(w, "Backends queried: %d (%s%d succeeded%s, %s%d failed%s)\n",
		total, Green, total-failed, Reset, Red, failed, Reset)
	fmt.Fprintf(w, "Total time: %.1fs\n", totalTime.Seconds())
}

// IsTerminal checks if the given file is a terminal.
func IsTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
