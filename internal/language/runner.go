// Package language implements one compile-and-run strategy per guest
// language. Every runner exposes the same two-step contract: Compile once
// per submission, RunCase once per test case, so the judge stays
// language-agnostic.
package language

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam-judge/internal/command"
	"exam-judge/internal/workspace"
)

// ErrUnsupported is returned for languages with no registered runner.
var ErrUnsupported = errors.New("unsupported language")

// Runner compiles a submission and runs the compiled artifact per test case.
type Runner interface {
	// Name returns the language identifier (e.g. "csharp", "typescript").
	Name() string

	// Compile writes source into the workspace and invokes the toolchain
	// once. Toolchain-reported diagnostics surface as *CompileError;
	// a missing toolchain surfaces as a spawn failure.
	Compile(ctx context.Context, ws *workspace.Workspace, source string) error

	// RunCase invokes the already-compiled artifact with input on stdin.
	// The timeout applies to this run only, never to compilation.
	RunCase(ctx context.Context, ws *workspace.Workspace, input string, timeout time.Duration) (*command.Outcome, error)
}

// CompileError carries the toolchain diagnostic for a failed compilation.
type CompileError struct {
	Language   string
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s compile error: %s", e.Language, e.Diagnostic)
}

// AsCompileError unwraps err to a *CompileError if it is one.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Registry maps language names to their Runner implementations. The set is
// closed at construction: a language outside it cannot bypass the
// compile-then-run contract.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry creates a registry with the given runners.
func NewRegistry(runners ...Runner) *Registry {
	r := &Registry{runners: make(map[string]Runner, len(runners))}
	for _, rn := range runners {
		r.runners[rn.Name()] = rn
	}
	return r
}

// Get returns the runner for the given language.
func (r *Registry) Get(lang string) (Runner, error) {
	rn, ok := r.runners[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, lang)
	}
	return rn, nil
}

// Languages returns all registered language names.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runners))
	for name := range r.runners {
		langs = append(langs, name)
	}
	return langs
}

// compileOutcome folds a compile invocation's result into the contract:
// a non-zero exit becomes *CompileError with the combined diagnostic,
// everything else passes through.
func compileOutcome(lang string, out *command.Outcome, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, command.ErrExit) {
		diag := out.Stderr
		if diag == "" {
			diag = out.Stdout
		}
		return &CompileError{Language: lang, Diagnostic: diag}
	}
	return err
}
