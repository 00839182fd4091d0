package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/simlin-project/simlin/internal/errors"
)

type jsonDiagnostic struct {
	Code     string `json:"code"`
	Variable string `json:"variable,omitempty"`
	Message  string `json:"message"`
	Start    int    `json:"start,omitempty"`
	End      int    `json:"end,omitempty"`
	Warning  bool   `json:"warning,omitempty"`
}

// dumpDiagnosticsJSON writes every diagnostic as a JSON array, for
// tooling that wraps the CLI.
func dumpDiagnosticsJSON(errs errors.List, unitErrs errors.VarErrors) {
	var out []jsonDiagnostic
	for _, d := range errs {
		out = append(out, jsonDiagnostic{
			Code: d.Code, Message: d.Message,
			Start: d.Span.Start, End: d.Span.End, Warning: d.Warning,
		})
	}
	for name, l := range unitErrs {
		for _, d := range l {
			out = append(out, jsonDiagnostic{
				Code: d.Code, Variable: name, Message: d.Message,
				Start: d.Span.Start, End: d.Span.End, Warning: d.Warning,
			})
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
