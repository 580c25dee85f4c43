// Package formatters renders evaluation results for the command line.
package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"atsexpert/internal/types"
)

// Formatter renders one kind of value in one output format
type Formatter interface {
	Format(data any) (string, error)
}

// FormatterRegistry maps format -> data type -> formatter
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter
}

// GlobalRegistry holds the built-in formatters
var GlobalRegistry = NewFormatterRegistry()

// NewFormatterRegistry creates a registry with the json, text and markdown
// formatters registered
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", JSONFormatter{})
	registry.RegisterFormatter("text", "EvaluationResult", ResultTextFormatter{})
	registry.RegisterFormatter("markdown", "EvaluationResult", ResultMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers formatter for format and dataType
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format renders data, falling back to the format's generic formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if byType, exists := fr.formatters[format]; exists {
		if formatter, exists := byType[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := byType["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns the registered formats in sorted order
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.EvaluationResult, *types.EvaluationResult:
		return "EvaluationResult"
	default:
		return "any"
	}
}

func asResult(data any) (*types.EvaluationResult, error) {
	switch v := data.(type) {
	case types.EvaluationResult:
		return &v, nil
	case *types.EvaluationResult:
		if v == nil {
			return nil, fmt.Errorf("nil EvaluationResult")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("expected EvaluationResult, got %T", data)
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

// ResultTextFormatter prints a heading, the model text and a footer
type ResultTextFormatter struct{}

func (ResultTextFormatter) Format(data any) (string, error) {
	result, err := asResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	title := strings.ToUpper(result.Intent.Title())
	fmt.Fprintf(&output, "=== %s ===\n\n", title)
	output.WriteString(strings.TrimRight(result.Text, "\n"))
	output.WriteString("\n\n")
	fmt.Fprintf(&output, "Response received in %.2f seconds", result.ElapsedSeconds)
	if result.Model != "" {
		fmt.Fprintf(&output, " (%s)", result.Model)
	}
	output.WriteString("\n")
	if usage := result.TokenUsage; usage != nil {
		fmt.Fprintf(&output, "Tokens: prompt=%d, response=%d, total=%d\n",
			usage.PromptTokens, usage.CandidatesTokens, usage.TotalTokens)
	}
	return output.String(), nil
}

// ResultMarkdownFormatter keeps the model's markdown and adds a heading and
// a details table
type ResultMarkdownFormatter struct{}

func (ResultMarkdownFormatter) Format(data any) (string, error) {
	result, err := asResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	fmt.Fprintf(&output, "# %s\n\n", result.Intent.Title())
	output.WriteString(strings.TrimRight(result.Text, "\n"))
	output.WriteString("\n\n---\n\n")
	output.WriteString("| Detail | Value |\n|---|---|\n")
	fmt.Fprintf(&output, "| Submission | `%s` |\n", result.SubmissionID)
	if result.Model != "" {
		fmt.Fprintf(&output, "| Model | %s |\n", result.Model)
	}
	fmt.Fprintf(&output, "| Elapsed | %.2f s |\n", result.ElapsedSeconds)
	if usage := result.TokenUsage; usage != nil {
		fmt.Fprintf(&output, "| Tokens | %d |\n", usage.TotalTokens)
	}
	return output.String(), nil
}
