package errors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ParseContext locates a parse failure inside an input document
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
}

// EnhancedParseError extends ReconcilerError with the location of the bad row
type EnhancedParseError struct {
	*ReconcilerError
	Location    *ParseContext `json:"location"`
	Recoverable bool          `json:"recoverable"`
	LineContent string        `json:"line_content,omitempty"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with location information
func (e *EnhancedParseError) Error() string {
	parts := []string{e.ReconcilerError.Error()}

	if e.Location != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
		if e.Location.Sheet != "" {
			location += fmt.Sprintf("[%s]", e.Location.Sheet)
		}
		if e.Location.Line > 0 {
			location += fmt.Sprintf(":%d", e.Location.Line)
		}
		if e.Location.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Location.Column)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// Unwrap exposes the embedded ReconcilerError to errors.As
func (e *EnhancedParseError) Unwrap() error {
	return e.ReconcilerError
}

// GetDetailedError returns a multi-line description for terminal output
func (e *EnhancedParseError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if e.Location != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Location.File))
		if e.Location.Sheet != "" {
			lines = append(lines, fmt.Sprintf("  → Sheet: %s", e.Location.Sheet))
		}
		if e.Location.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Location.Line))
		}
		if e.Location.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Location.Column))
		}
		if e.Location.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Location.Value))
		}
		if e.Location.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Location.Expected))
		}
	}

	if e.LineContent != "" {
		lines = append(lines, fmt.Sprintf("  → Content: %s", e.LineContent))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewEnhancedParseError creates a new enhanced parse error
func NewEnhancedParseError(code ErrorCode, location *ParseContext, message string, cause error) *EnhancedParseError {
	base := build(CategoryParse, code, message, cause)

	if location != nil {
		base.WithContext("file", location.File).
			WithContext("line", location.Line).
			WithContext("column", location.Column).
			WithContext("value", location.Value)
	}

	return &EnhancedParseError{
		ReconcilerError: base,
		Location:        location,
		Recoverable:     true,
	}
}

// WithLineContent adds the raw row to the error
func (e *EnhancedParseError) WithLineContent(content string) *EnhancedParseError {
	e.LineContent = content
	return e
}

// WithExamples adds example values to help fix the error
func (e *EnhancedParseError) WithExamples(examples ...string) *EnhancedParseError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the EnhancedParseError
func (e *EnhancedParseError) WithSuggestion(suggestion string) *EnhancedParseError {
	e.ReconcilerError.WithSuggestion(suggestion)
	return e
}

// MissingColumnError reports required columns that no header or alias resolved to
func MissingColumnError(file string, expectedColumns []string, actualColumns []string) *EnhancedParseError {
	missing := findMissingColumns(expectedColumns, actualColumns)

	location := &ParseContext{
		File:     file,
		Line:     1,
		Expected: fmt.Sprintf("columns: %s", strings.Join(expectedColumns, ", ")),
	}

	message := fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))
	err := NewEnhancedParseError(CodeMissingColumn, location, message, nil).
		WithSuggestion("add the missing columns or map them with column aliases")
	err.Recoverable = false
	return err
}

// EmptyValueError reports a row whose required cell is blank
func EmptyValueError(file string, line int, column string) *EnhancedParseError {
	location := &ParseContext{
		File:     file,
		Line:     line,
		Column:   column,
		Expected: "non-empty value",
	}

	return NewEnhancedParseError(CodeMissingField, location, "required field is empty", nil).
		WithSuggestion("provide a value for this required field")
}

// ParseErrorCollector gathers row-level errors while a document is read
type ParseErrorCollector struct {
	errors    []*EnhancedParseError
	maxErrors int
}

// NewParseErrorCollector creates a collector that stops accepting after maxErrors
func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{
		errors:    make([]*EnhancedParseError, 0),
		maxErrors: maxErrors,
	}
}

// Add records err and reports whether reading should continue
func (c *ParseErrorCollector) Add(err *EnhancedParseError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// GetErrors returns all collected errors
func (c *ParseErrorCollector) GetErrors() []*EnhancedParseError {
	return c.errors
}

// GetSummary returns an error summary for all collected errors
func (c *ParseErrorCollector) GetSummary() *ErrorSummary {
	result := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		result[i] = err.ReconcilerError
	}
	return NewErrorSummary(result)
}

func findMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}
	return missing
}

// FormatParseErrorsForUser groups errors by file for terminal output
func FormatParseErrorsForUser(errs []*EnhancedParseError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}
	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs)), ""}

	byFile := make(map[string][]*EnhancedParseError)
	for _, err := range errs {
		file := "unknown"
		if err.Location != nil {
			file = filepath.Base(err.Location.File)
		}
		byFile[file] = append(byFile[file], err)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	const maxDetailed = 3
	for _, file := range files {
		fileErrors := byFile[file]
		lines = append(lines, fmt.Sprintf("File: %s (%d errors)", file, len(fileErrors)))
		for i, err := range fileErrors {
			if i == maxDetailed {
				lines = append(lines, "", fmt.Sprintf("... and %d more errors in this file", len(fileErrors)-maxDetailed))
				break
			}
			lines = append(lines, "", err.GetDetailedError())
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
