// Package ocr reads math problems from images.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johnayoung/math-consensus/internal/logger"
)

// ErrNoEngine is returned when no OCR engine is configured.
var ErrNoEngine = errors.New("no OCR engine configured")

// Engine recognizes the text of one image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path string) (string, error)
}

// Processor tries engines in order and returns the first non-empty result.
type Processor struct {
	engines []Engine
	log     logger.Logger
}

// NewProcessor creates a Processor that tries engines in the given order.
func NewProcessor(log logger.Logger, engines ...Engine) *Processor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	p := &Processor{log: log}
	for _, e := range engines {
		if e != nil {
			p.engines = append(p.engines, e)
		}
	}
	return p
}

// Available reports whether at least one engine is configured.
func (p *Processor) Available() bool {
	return len(p.engines) > 0
}

// Process extracts problem text from the image at path.
func (p *Processor) Process(ctx context.Context, path string) (string, error) {
	if len(p.engines) == 0 {
		return "", ErrNoEngine
	}

	var errs []error
	for _, e := range p.engines {
		text, err := e.Recognize(ctx, path)
		if err == nil {
			text = strings.TrimSpace(text)
			if text != "" {
				return text, nil
			}
			err = errors.New("no text recognized")
		}
		p.log.WithError(err).Warn("OCR engine failed, trying next", map[string]interface{}{
			"engine": e.Name(),
			"path":   path,
		})
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
	}
	return "", errors.Join(errs...)
}
