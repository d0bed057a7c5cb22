// Package explain builds natural-language summaries of an analysis, either
// through an external model or the deterministic fallback template.
package explain

import "context"

// Result is either explanation text or the reason none is available.
type Result struct {
	Text   string
	Reason string
	ok     bool
}

func OK(text string) Result {
	return Result{Text: text, ok: true}
}

func Unavailable(reason string) Result {
	return Result{Reason: reason}
}

// Available reports whether Text holds a usable explanation.
func (r Result) Available() bool {
	return r.ok && r.Text != ""
}

type Explainer interface {
	Explain(ctx context.Context, prompt string) Result
}

// Disabled never produces an explanation.
type Disabled struct{}

func (Disabled) Explain(context.Context, string) Result {
	return Unavailable("explanation provider disabled")
}

// Func adapts a function to Explainer.
type Func func(ctx context.Context, prompt string) Result

func (f Func) Explain(ctx context.Context, prompt string) Result {
	return f(ctx, prompt)
}
