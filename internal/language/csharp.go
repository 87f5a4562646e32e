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
	csharpSource = "Program.cs"
	csharpBinary = "Program.exe"
)

// CSharp builds a submission ahead of time with the C# compiler and invokes
// the produced executable on a CLR host once per test case.
type CSharp struct {
	compiler string // e.g. "csc"
	runtime  string // e.g. "mono"
}

// NewCSharp creates the C# runner from toolchain config.
func NewCSharp(tc config.ToolchainConfig) *CSharp {
	return &CSharp{compiler: tc.Compiler, runtime: tc.Runtime}
}

func (c *CSharp) Name() string { return "csharp" }

func (c *CSharp) Compile(ctx context.Context, ws *workspace.Workspace, source string) error {
	if err := ws.WriteFile(csharpSource, source); err != nil {
		return err
	}

	// csc reports diagnostics on stdout and exits non-zero.
	out, err := command.Run(ctx, command.Spec{
		Path: c.compiler,
		Args: []string{"-nologo", "-out:" + csharpBinary, csharpSource},
		Dir:  ws.Dir(),
	})
	if err != nil {
		log.Debug().Str("user_id", ws.UserID()).Str("language", c.Name()).Msg("compile failed")
	}
	return compileOutcome(c.Name(), out, err)
}

func (c *CSharp) RunCase(ctx context.Context, ws *workspace.Workspace, input string, timeout time.Duration) (*command.Outcome, error) {
	return command.Run(ctx, command.Spec{
		Path:    c.runtime,
		Args:    []string{csharpBinary},
		Dir:     ws.Dir(),
		Stdin:   input,
		Timeout: timeout,
	})
}
