package api

import (
	"exam-judge/internal/judge"
	"exam-judge/internal/store"
)

// LoginRequest creates or revalidates a user session.
type LoginRequest struct {
	UserID            string `json:"userId"`
	Mode              string `json:"mode"` // practice, timed
	TimeBudgetSeconds int64  `json:"timeBudgetSeconds,omitempty"`
}

// SwitchModeRequest moves a practice session to timed mode.
type SwitchModeRequest struct {
	UserID            string `json:"userId"`
	TimeBudgetSeconds int64  `json:"timeBudgetSeconds"`
}

// DisqualifyRequest reports a rule violation for a user.
type DisqualifyRequest struct {
	UserID string `json:"userId"`
}

// RunRequest submits source code against a set of test cases.
type RunRequest struct {
	UserID    string           `json:"userId"`
	Code      string           `json:"code"`
	TestCases []judge.TestCase `json:"testCases"`
	IsGraded  bool             `json:"isGraded"`
}

// RunResponse carries per-case verdicts. Output is empty for graded
// submissions; those are fetched later via get-result.
type RunResponse struct {
	Success bool                   `json:"success"`
	Output  []judge.TestCaseResult `json:"output"`
}

// SessionView is the wire shape of a session snapshot.
type SessionView struct {
	Mode                 string `json:"mode"`
	Disqualified         bool   `json:"disqualified"`
	Completed            bool   `json:"completed"`
	RemainingTimeSeconds *int64 `json:"remainingTimeSeconds,omitempty"`
}

// UserStateResponse is returned by the user-state endpoint.
type UserStateResponse struct {
	Success bool        `json:"success"`
	Session SessionView `json:"session"`
}

// SimpleResponse acknowledges a state-changing request.
type SimpleResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// AuditEventsResponse lists recent audit-trail entries for one user,
// served from the Postgres mirror.
type AuditEventsResponse struct {
	Success bool          `json:"success"`
	Events  []store.Event `json:"events"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
