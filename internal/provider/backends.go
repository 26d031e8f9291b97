package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Backend names in the fixed roster.
const (
	ChatGPT  = "chatgpt"
	Claude   = "claude"
	DeepSeek = "deepseek"
	Gemini   = "gemini"
)

// Roster lists every supported backend in reporting order.
var Roster = []string{ChatGPT, Claude, DeepSeek, Gemini}

// PlaceholderPrefix marks API keys copied unedited from an example env file.
const PlaceholderPrefix = "your_"

// KeyConfigured reports whether key looks like a real credential.
func KeyConfigured(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && !strings.HasPrefix(key, PlaceholderPrefix)
}

// Settings configures one backend client.
type Settings struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// New builds the client for a roster backend.
func New(name string, s Settings) (Provider, error) {
	switch name {
	case ChatGPT, DeepSeek:
		var opts []OpenAIOption
		if s.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(s.BaseURL))
		}
		if s.HTTPClient != nil {
			opts = append(opts, WithOpenAIHTTPClient(s.HTTPClient))
		}
		if name == DeepSeek {
			return NewDeepSeek(s.APIKey, opts...)
		}
		return NewOpenAI(s.APIKey, opts...)
	case Claude:
		var opts []AnthropicOption
		if s.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(s.BaseURL))
		}
		if s.HTTPClient != nil {
			opts = append(opts, WithAnthropicHTTPClient(s.HTTPClient))
		}
		return NewAnthropic(s.APIKey, opts...)
	case Gemini:
		var opts []GoogleOption
		if s.BaseURL != "" {
			opts = append(opts, WithGoogleBaseURL(s.BaseURL))
		}
		if s.HTTPClient != nil {
			opts = append(opts, WithGoogleHTTPClient(s.HTTPClient))
		}
		return NewGoogle(s.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// NewRosterRegistry registers every roster backend whose key is
// configured, in roster order. Backends that fail to build are skipped and
// reported in the returned error.
func NewRosterRegistry(settings map[string]Settings) (*Registry, error) {
	reg := NewRegistry()
	var errs []error
	for _, name := range Roster {
		s, ok := settings[name]
		if !ok || !KeyConfigured(s.APIKey) {
			continue
		}
		p, err := New(name, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		reg.Register(name, s.Model, p)
	}
	return reg, errors.Join(errs...)
}
