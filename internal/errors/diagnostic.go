package errors

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range into an equation's source text.
// A zero End means the span is unknown.
type Span struct {
	Start int
	End   int
}

// Diagnostic is a single error or warning with a stable code and, when
// available, the offending source span.
type Diagnostic struct {
	Code    string
	Message string
	Span    Span
	Warning bool
}

func (d *Diagnostic) Error() string {
	if d.Span.End > 0 {
		return fmt.Sprintf("%s at %d..%d: %s", d.Code, d.Span.Start, d.Span.End, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// New builds a Diagnostic without a source span.
func New(code string, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewAt builds a Diagnostic pinned to a source span.
func NewAt(code string, span Span, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// List collects diagnostics for one equation or variable. Parsing and type
// checking append here rather than aborting, so a single equation can report
// every problem it has.
type List []*Diagnostic

func (l List) Error() string {
	if len(l) == 0 {
		return "no errors"
	}
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether the list contains any non-warning diagnostic.
func (l List) HasErrors() bool {
	for _, d := range l {
		if !d.Warning {
			return true
		}
	}
	return false
}

// VarErrors maps a canonical variable name to its diagnostics. It is how
// per-variable errors bubble to the model and project level.
type VarErrors map[string]List

func (ve VarErrors) Add(varName string, d *Diagnostic) {
	ve[varName] = append(ve[varName], d)
}

func (ve VarErrors) Extend(varName string, ds List) {
	if len(ds) > 0 {
		ve[varName] = append(ve[varName], ds...)
	}
}

func (ve VarErrors) HasErrors() bool {
	for _, l := range ve {
		if l.HasErrors() {
			return true
		}
	}
	return false
}

func (ve VarErrors) Error() string {
	if len(ve) == 0 {
		return "no errors"
	}
	var msgs []string
	for name, l := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: %s", name, l.Error()))
	}
	return strings.Join(msgs, "\n")
}
