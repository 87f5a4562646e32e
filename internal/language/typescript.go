package language

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"exam-judge/internal/command"
	"exam-judge/internal/config"
	"exam-judge/internal/workspace"
)

const (
	typescriptSource = "main.ts"
	typescriptEmit   = "main.js"
)

// TypeScript transpiles a submission to JavaScript once and invokes the
// managed runtime on the emitted file once per test case.
type TypeScript struct {
	compiler string // e.g. "tsc"
	runtime  string // e.g. "node"
}

// NewTypeScript creates the TypeScript runner from toolchain config.
func NewTypeScript(tc config.ToolchainConfig) *TypeScript {
	return &TypeScript{compiler: tc.Compiler, runtime: tc.Runtime}
}

func (t *TypeScript) Name() string { return "typescript" }

func (t *TypeScript) Compile(ctx context.Context, ws *workspace.Workspace, source string) error {
	if err := ws.WriteFile(typescriptSource, source); err != nil {
		return err
	}

	// tsc prints diagnostics on stdout and exits non-zero.
	out, err := command.Run(ctx, command.Spec{
		Path: t.compiler,
		Args: []string{"--outDir", ".", typescriptSource},
		Dir:  ws.Dir(),
	})
	if err != nil {
		log.Debug().Str("user_id", ws.UserID()).Str("language", t.Name()).Msg("transpile failed")
	}
	return compileOutcome(t.Name(), out, err)
}

func (t *TypeScript) RunCase(ctx context.Context, ws *workspace.Workspace, input string, timeout time.Duration) (*command.Outcome, error) {
	return command.Run(ctx, command.Spec{
		Path:    t.runtime,
		Args:    []string{typescriptEmit},
		Dir:     ws.Dir(),
		Stdin:   input,
		Timeout: timeout,
	})
}
