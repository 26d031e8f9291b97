package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Tesseract recognizes text with the tesseract command-line tool.
type Tesseract struct {
	binary string
	run    CommandRunner
}

// NewTesseract returns a Tesseract engine, or nil when binary cannot be
// found on PATH.
func NewTesseract(binary string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil
	}
	return &Tesseract{binary: path, run: execRunner}
}

// NewTesseractWithRunner returns a Tesseract engine that shells out
// through run.
func NewTesseractWithRunner(binary string, run CommandRunner) *Tesseract {
	return &Tesseract{binary: binary, run: run}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize prints the recognized text of the image to stdout and returns it.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	out, err := t.run(ctx, t.binary, path, "stdout")
	if err != nil {
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return string(out), nil
}
