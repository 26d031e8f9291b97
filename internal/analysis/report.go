package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the report encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts markdown, md, json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Thresholds for automatic observations.
const (
	lowSuccessRate  = 50.0
	highSuccessRate = 80.0
	lowAgreement    = 0.5
	highAgreement   = 0.8
	highErrorRate   = 10.0
)

func observe(r *Report) []string {
	var out []string

	switch {
	case r.OverallSuccessRate < lowSuccessRate:
		out = append(out, "The overall success rate is low. Consider improving the prompt or checking why backends disagree.")
	case r.OverallSuccessRate > highSuccessRate:
		out = append(out, "The success rate is high, indicating good consensus among backends.")
	}

	models := r.Agreement.Models
	for i, m1 := range models {
		for _, m2 := range models[i+1:] {
			rate, ok := r.Agreement.Rate(m1, m2)
			if !ok {
				continue
			}
			switch {
			case rate < lowAgreement:
				out = append(out, fmt.Sprintf("%s and %s have low agreement (%.2f). They may approach problems differently.", m1, m2, rate))
			case rate > highAgreement:
				out = append(out, fmt.Sprintf("%s and %s have high agreement (%.2f).", m1, m2, rate))
			}
		}
	}

	for _, e := range r.ErrorRates {
		if e.Percent > highErrorRate {
			out = append(out, fmt.Sprintf("%s has a high error rate (%.1f%%). Check its API configuration.", e.Label, e.Percent))
		}
	}
	return out
}

// Write encodes r to w in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case FormatMarkdown, "":
		_, err := io.WriteString(w, Markdown(r))
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Markdown renders r as a markdown summary report.
func Markdown(r *Report) string {
	var b strings.Builder

	b.WriteString("# Math Consensus Analysis Report\n\n")
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "Analysis date: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total problems analyzed: %d\n\n", r.Total)

	if r.Total == 0 {
		b.WriteString("No data available for analysis.\n")
		return b.String()
	}

	b.WriteString("## Performance Metrics\n\n")
	fmt.Fprintf(&b, "### Overall Success Rate\n\nSuccess rate: %.1f%%\n\n", r.OverallSuccessRate)

	shareTable(&b, "Consensus Distribution", "Consensus Type", "Percentage", r.ConsensusRates)
	shareTable(&b, "Confidence Levels", "Confidence", "Percentage", r.ConfidenceDistribution)
	shareTable(&b, "Model Availability", "Model", "Availability", r.ModelAvailability)
	shareTable(&b, "Error Rates by Model", "Model", "Error Rate", r.ErrorRates)

	b.WriteString("### Response Length Statistics\n\n")
	b.WriteString("| Model | Mean Length | Median Length | Min | Max |\n")
	b.WriteString("|-------|-------------|---------------|-----|-----|\n")
	for _, s := range r.ResponseLength {
		fmt.Fprintf(&b, "| %s | %.1f | %.1f | %d | %d |\n", s.Model, s.Mean, s.Median, s.Min, s.Max)
	}
	b.WriteString("\n")

	if len(r.Agreement.Models) > 0 {
		b.WriteString("### Model Agreement Matrix\n\n")
		b.WriteString("*Values show the proportion of cases where models provided the same answer*\n\n")
		b.WriteString("| | " + strings.Join(r.Agreement.Models, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat("-|", len(r.Agreement.Models)+1) + "\n")
		for i, m := range r.Agreement.Models {
			fmt.Fprintf(&b, "| %s |", m)
			for _, cell := range r.Agreement.Rates[i] {
				if cell == nil {
					b.WriteString(" N/A |")
				} else {
					fmt.Fprintf(&b, " %.2f |", *cell)
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Complexity) > 0 {
		b.WriteString("### Success Rate by Problem Complexity\n\n")
		b.WriteString("| Complexity | Length | Problems | Full Consensus |\n")
		b.WriteString("|------------|--------|----------|----------------|\n")
		for _, c := range r.Complexity {
			fmt.Fprintf(&b, "| %s | %d-%d | %d | %.1f%% |\n", c.Label, c.MinLength, c.MaxLength, c.Count, c.FullConsensusRate)
		}
		b.WriteString("\n")
	}

	if len(r.Trend) > 0 {
		last := r.Trend[len(r.Trend)-1]
		fmt.Fprintf(&b, "### Success Rate Over Time\n\n%d-problem rolling window, latest: %.1f%% (%s)\n\n",
			r.TrendWindow, last.SuccessRate, last.Timestamp.Format("2006-01-02 15:04:05"))
	}

	b.WriteString("## Observations\n\n")
	if len(r.Observations) == 0 {
		b.WriteString("No automated observations generated.\n")
	}
	for _, o := range r.Observations {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	return b.String()
}

func shareTable(b *strings.Builder, title, label, value string, rows []Share) {
	fmt.Fprintf(b, "### %s\n\n", title)
	fmt.Fprintf(b, "| %s | %s |\n", label, value)
	fmt.Fprintf(b, "|%s|%s|\n", strings.Repeat("-", len(label)+2), strings.Repeat("-", len(value)+2))
	for _, s := range rows {
		fmt.Fprintf(b, "| %s | %.1f%% |\n", s.Label, s.Percent)
	}
	b.WriteString("\n")
}
