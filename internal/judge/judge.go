// Package judge drives a guest-language runner across a set of test cases
// and turns process outcomes into per-case verdicts.
package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"exam-judge/internal/language"
	"exam-judge/internal/monitor"
	"exam-judge/internal/sanitize"
	"exam-judge/internal/session"
	"exam-judge/internal/workspace"
)

// Status is the verdict for one test case.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// TestCase is one immutable input/expected-output pair from the problem
// definition.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsPublic       bool   `json:"isPublic"`
}

// TestCaseResult is the verdict for one test case. Never mutated after
// creation.
type TestCaseResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Status         Status `json:"status"`
	IsPublic       bool   `json:"isPublic"`
}

// ResultSink receives graded submissions and audit events for durable
// storage. The judge only writes; the read path is the store's own.
type ResultSink interface {
	SaveResults(userID string, results []TestCaseResult) error
	RecordEvent(userID, event string) error
}

// Options tunes a Judge.
type Options struct {
	RunTimeout     time.Duration // per-case wall clock limit
	MaxConcurrent  int64         // server-wide bound on in-flight grades
	MaxOutputBytes int           // stored-output cap per case
}

// Judge validates the session, compiles once, runs the compiled artifact
// per test case, and persists graded submissions.
type Judge struct {
	sessions   *session.Store
	languages  *language.Registry
	workspaces *workspace.Manager
	sink       ResultSink
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	sem        *semaphore.Weighted
	opts       Options
}

// New wires a Judge from its collaborators.
func New(sessions *session.Store, languages *language.Registry, workspaces *workspace.Manager, sink ResultSink, metrics *monitor.Metrics, opts Options) *Judge {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Second
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 32
	}
	return &Judge{
		sessions:   sessions,
		languages:  languages,
		workspaces: workspaces,
		sink:       sink,
		metrics:    metrics,
		tracer:     monitor.NewTracer(),
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		opts:       opts,
	}
}

// Grade runs a submission against its test cases and returns the per-case
// verdicts. For graded submissions the verdicts are persisted and an empty
// slice is returned; the caller retrieves them through the store's read
// path so the synchronous response leaks nothing.
//
// Session validity is checked once at entry. A session that expires while
// its cases are running is not interrupted; the submission grades to
// completion.
func (j *Judge) Grade(ctx context.Context, userID, source, lang string, cases []TestCase, graded bool) ([]TestCaseResult, error) {
	gradeID := uuid.New().String()

	logger := log.With().
		Str("grade_id", gradeID).
		Str("user_id", userID).
		Str("language", lang).
		Int("cases", len(cases)).
		Bool("graded", graded).
		Logger()

	ctx, span := j.tracer.StartSpan(ctx, "grade",
		monitor.AttrGradeID.String(gradeID),
		monitor.AttrUserID.String(userID),
		monitor.AttrLanguage.String(lang),
		monitor.AttrGraded.Bool(graded),
	)
	defer span.End()

	if err := j.sessions.Validate(userID); err != nil {
		logger.Warn().Err(err).Msg("grade rejected by session check")
		return nil, err
	}

	runner, err := j.languages.Get(lang)
	if err != nil {
		return nil, err
	}

	if err := j.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring grade slot: %w", err)
	}
	defer j.sem.Release(1)

	j.metrics.ActiveGrades.Inc()
	defer j.metrics.ActiveGrades.Dec()
	j.metrics.CodeSizeBytes.Observe(float64(len(source)))

	start := time.Now()

	// Same-user grades serialize on the workspace lock; the compile step
	// and every run below see a consistent scratch directory.
	ws, err := j.workspaces.Acquire(userID)
	if err != nil {
		return nil, err
	}
	defer ws.Release()

	logger.Info().Msg("grading started")

	results, err := j.runAll(ctx, logger, runner, ws, source, cases)
	if err != nil {
		j.metrics.RecordGrade(lang, "error", time.Since(start).Seconds())
		return nil, err
	}

	status := "success"
	for _, r := range results {
		if r.Status != StatusSuccess {
			status = string(r.Status)
			break
		}
	}
	j.metrics.RecordGrade(lang, status, time.Since(start).Seconds())

	logger.Info().
		Str("status", status).
		Dur("duration", time.Since(start)).
		Msg("grading finished")

	if !graded {
		return results, nil
	}

	if mode, merr := j.sessions.Mode(userID); merr == nil && mode == session.ModeTimed {
		if err := j.sessions.MarkCompleted(userID); err != nil {
			logger.Warn().Err(err).Msg("could not mark session completed")
		} else {
			j.metrics.RecordSessionEvent("completed")
		}
	}

	if err := j.sink.SaveResults(userID, results); err != nil {
		return nil, fmt.Errorf("persisting graded results: %w", err)
	}

	// Graded verdicts are withheld from the synchronous response.
	return []TestCaseResult{}, nil
}

// runAll compiles once and runs each case in order. A compile failure
// yields one identical error verdict per case and zero runs; an individual
// run failure never aborts its siblings.
func (j *Judge) runAll(ctx context.Context, logger zerolog.Logger, runner language.Runner, ws *workspace.Workspace, source string, cases []TestCase) ([]TestCaseResult, error) {
	compileCtx, compileSpan := j.tracer.StartSpan(ctx, "compile")
	err := runner.Compile(compileCtx, ws, source)
	compileSpan.End()

	if err != nil {
		var diagnostic string
		if ce, ok := language.AsCompileError(err); ok {
			diagnostic = ce.Diagnostic
			j.metrics.CompileFailures.WithLabelValues(runner.Name()).Inc()
			logger.Info().Msg("compilation failed")
		} else {
			// Spawn or filesystem failure: the toolchain never ran.
			diagnostic = err.Error()
			logger.Error().Err(err).Msg("compile step failed before the toolchain reported")
		}
		diagnostic = sanitize.Truncate(sanitize.Scrub(diagnostic), j.opts.MaxOutputBytes)

		results := make([]TestCaseResult, 0, len(cases))
		for _, tc := range cases {
			results = append(results, TestCaseResult{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				ActualOutput:   diagnostic,
				Status:         StatusError,
				IsPublic:       tc.IsPublic,
			})
		}
		return results, nil
	}

	results := make([]TestCaseResult, 0, len(cases))
	for i, tc := range cases {
		caseCtx, caseSpan := j.tracer.StartSpan(ctx, "run_case", monitor.AttrCaseIndex.Int(i))
		res := j.runOne(caseCtx, runner, ws, tc)
		caseSpan.End()

		j.metrics.RecordCase(runner.Name(), string(res.Status))
		j.metrics.OutputSizeBytes.Observe(float64(len(res.ActualOutput)))
		results = append(results, res)
	}
	return results, nil
}

func (j *Judge) runOne(ctx context.Context, runner language.Runner, ws *workspace.Workspace, tc TestCase) TestCaseResult {
	res := TestCaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		IsPublic:       tc.IsPublic,
	}

	out, err := runner.RunCase(ctx, ws, tc.Input, j.opts.RunTimeout)
	if err != nil {
		message := err.Error()
		if out != nil && out.Stderr != "" {
			message = out.Stderr
		}
		res.Status = StatusError
		res.ActualOutput = sanitize.Truncate(sanitize.Scrub(message), j.opts.MaxOutputBytes)
		return res
	}

	res.ActualOutput = sanitize.Truncate(sanitize.Scrub(out.Stdout), j.opts.MaxOutputBytes)
	// Both sides scrub before comparison: a correct answer containing a
	// slash-separated token would otherwise never match its placeholder
	// rewrite.
	if sanitize.Normalize(res.ActualOutput) == sanitize.Normalize(sanitize.Scrub(tc.ExpectedOutput)) {
		res.Status = StatusSuccess
	} else {
		res.Status = StatusFailure
	}
	return res
}
