package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Mathpix recognizes math notation through the Mathpix v3 text API.
type Mathpix struct {
	appID      string
	appKey     string
	baseURL    string
	httpClient *http.Client
}

// MathpixOption configures a Mathpix engine.
type MathpixOption func(*Mathpix)

// WithMathpixBaseURL sets a custom base URL.
func WithMathpixBaseURL(url string) MathpixOption {
	return func(m *Mathpix) { m.baseURL = url }
}

// WithMathpixHTTPClient sets a custom HTTP client.
func WithMathpixHTTPClient(c *http.Client) MathpixOption {
	return func(m *Mathpix) { m.httpClient = c }
}

// NewMathpix creates a Mathpix engine. Both credentials are required.
func NewMathpix(appID, appKey string, opts ...MathpixOption) (*Mathpix, error) {
	if appID == "" || appKey == "" {
		return nil, errors.New("mathpix app id and key required")
	}

	m := &Mathpix{
		appID:      appID,
		appKey:     appKey,
		baseURL:    "https://api.mathpix.com/v3",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Mathpix) Name() string { return "mathpix" }

// Recognize uploads the image and returns its LaTeX form, or plain text
// when no LaTeX was produced.
func (m *Mathpix) Recognize(ctx context.Context, path string) (string, error) {
	uri, err := dataURI(path)
	if err != nil {
		return "", err
	}

	payload := mathpixRequest{
		Src:     uri,
		Formats: []string{"text", "latex"},
	}
	payload.DataOptions.IncludeASCIIMath = true
	payload.DataOptions.IncludeLatex = true

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/text", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("app_id", m.appID)
	httpReq.Header.Set("app_key", m.appKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result mathpixResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("mathpix: %s", result.Error)
	}
	if result.Latex != "" {
		return result.Latex, nil
	}
	return result.Text, nil
}

func dataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

type mathpixRequest struct {
	Src         string   `json:"src"`
	Formats     []string `json:"formats"`
	DataOptions struct {
		IncludeASCIIMath bool `json:"include_asciimath"`
		IncludeLatex     bool `json:"include_latex"`
	} `json:"data_options"`
}

type mathpixResponse struct {
	Text  string `json:"text"`
	Latex string `json:"latex"`
	Error string `json:"error"`
}
