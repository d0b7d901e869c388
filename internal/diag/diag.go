// Package diag holds the collect-all validation findings shared by the
// block validator and the scene step validator.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Severity separates findings that block compilation from advisory ones.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one validation finding. Field is always the specific
// config path that is missing or invalid.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Ref      string   `json:"ref,omitempty"` // step or block ID
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Ref != "" {
		return fmt.Sprintf("[%s] %s (%s): %s", d.Code, d.Field, d.Ref, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Code, d.Field, d.Message)
}

// List is an ordered set of findings.
type List []Diagnostic

// Errorf appends an error finding.
func (l *List) Errorf(code, field, ref, format string, args ...any) {
	*l = append(*l, Diagnostic{Code: code, Severity: SeverityError, Field: field, Ref: ref, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning finding.
func (l *List) Warnf(code, field, ref, format string, args ...any) {
	*l = append(*l, Diagnostic{Code: code, Severity: SeverityWarning, Field: field, Ref: ref, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any finding is an error.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error findings.
func (l List) Errors() List {
	return l.filter(SeverityError)
}

// Warnings returns only the warning findings.
func (l List) Warnings() List {
	return l.filter(SeverityWarning)
}

func (l List) filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Codes lists the finding codes in order, mostly for tests and logs.
func (l List) Codes() []string {
	codes := make([]string, len(l))
	for i, d := range l {
		codes[i] = d.Code
	}
	return codes
}

// Err joins the error findings into one error, or returns nil.
func (l List) Err() error {
	errs := l.Errors()
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, d := range errs {
		joined[i] = d
	}
	return errors.Join(joined...)
}

// String renders one finding per line.
func (l List) String() string {
	var b strings.Builder
	for _, d := range l {
		b.WriteString(string(d.Severity))
		b.WriteString(" ")
		b.WriteString(d.Error())
		b.WriteString("\n")
	}
	return b.String()
}
