package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"exam-judge/internal/judge"
	"exam-judge/internal/language"
	"exam-judge/internal/monitor"
	"exam-judge/internal/session"
	"exam-judge/internal/store"
)

// Grader is the judge surface the handlers depend on.
type Grader interface {
	Grade(ctx context.Context, userID, source, lang string, cases []judge.TestCase, graded bool) ([]judge.TestCaseResult, error)
}

// Wiper clears a user's scratch area; satisfied by workspace.Manager.
type Wiper interface {
	Wipe(userID string) error
}

type Handlers struct {
	grader        Grader
	sessions      *session.Store
	results       *store.FileStore
	scratch       Wiper
	metrics       *monitor.Metrics
	defaultBudget time.Duration
	maxCodeBytes  int
}

func NewHandlers(grader Grader, sessions *session.Store, results *store.FileStore, scratch Wiper, metrics *monitor.Metrics, defaultBudget time.Duration, maxCodeBytes int) *Handlers {
	return &Handlers{
		grader:        grader,
		sessions:      sessions,
		results:       results,
		scratch:       scratch,
		metrics:       metrics,
		defaultBudget: defaultBudget,
		maxCodeBytes:  maxCodeBytes,
	}
}

func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.UserID == "" {
		writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	budget := time.Duration(req.TimeBudgetSeconds) * time.Second
	if mode == session.ModeTimed && budget <= 0 {
		budget = h.defaultBudget
	}

	h.sessions.Login(req.UserID, mode, budget)

	// Scratch artifacts from a previous session are not durable state.
	if h.scratch != nil {
		if err := h.scratch.Wipe(req.UserID); err != nil {
			log.Warn().Err(err).Str("user_id", req.UserID).Msg("could not wipe scratch area on login")
		}
	}

	writeJSON(w, http.StatusOK, SimpleResponse{Success: true})
}

func (h *Handlers) HandleUserState(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	snap, err := h.sessions.State(userID)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UserStateResponse{
		Success: true,
		Session: SessionView{
			Mode:                 string(snap.Mode),
			Disqualified:         snap.Disqualified,
			Completed:            snap.Completed,
			RemainingTimeSeconds: snap.RemainingSeconds,
		},
	})
}

func (h *Handlers) HandleDisqualify(w http.ResponseWriter, r *http.Request) {
	var req DisqualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.UserID == "" {
		writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if err := h.sessions.Disqualify(req.UserID); err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	h.metrics.RecordSessionEvent("disqualified")
	writeJSON(w, http.StatusOK, SimpleResponse{Success: true})
}

func (h *Handlers) HandleSwitchMode(w http.ResponseWriter, r *http.Request) {
	var req SwitchModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.UserID == "" {
		writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	budget := time.Duration(req.TimeBudgetSeconds) * time.Second
	if budget <= 0 {
		budget = h.defaultBudget
	}

	if err := h.sessions.SwitchToTimed(req.UserID, budget); err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SimpleResponse{Success: true})
}

// HandleRun returns the execution handler for one guest language.
func (h *Handlers) HandleRun(lang string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if req.UserID == "" {
			writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if req.Code == "" {
			writeError(w, "code is required", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if h.maxCodeBytes > 0 && len(req.Code) > h.maxCodeBytes {
			writeError(w, "code exceeds the size limit", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if len(req.TestCases) == 0 {
			writeError(w, "testCases is required", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}

		results, err := h.grader.Grade(r.Context(), req.UserID, req.Code, lang, req.TestCases, req.IsGraded)
		if err != nil {
			switch {
			case isSessionError(err):
				h.writeSessionError(w, r, err)
			case errors.Is(err, language.ErrUnsupported):
				writeError(w, err.Error(), "UNSUPPORTED_LANGUAGE", http.StatusBadRequest, r)
			default:
				log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("grading failed")
				writeError(w, "grading failed", "GRADING_FAILED", http.StatusInternalServerError, r)
			}
			return
		}

		writeJSON(w, http.StatusOK, RunResponse{Success: true, Output: results})
	}
}

func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if !store.ValidUserID(userID) {
		writeError(w, "invalid userId", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	results, err := h.results.LoadResults(userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("loading stored results failed")
		writeError(w, "could not load results", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{Success: true, Output: results})
}

func isSessionError(err error) bool {
	return errors.Is(err, session.ErrNotFound) ||
		errors.Is(err, session.ErrExpired) ||
		errors.Is(err, session.ErrDisqualified) ||
		errors.Is(err, session.ErrCompleted)
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, err.Error(), "SESSION_NOT_FOUND", http.StatusNotFound, r)
	case errors.Is(err, session.ErrExpired):
		writeError(w, err.Error(), "SESSION_EXPIRED", http.StatusForbidden, r)
	case errors.Is(err, session.ErrDisqualified):
		writeError(w, err.Error(), "SESSION_DISQUALIFIED", http.StatusForbidden, r)
	case errors.Is(err, session.ErrCompleted):
		writeError(w, err.Error(), "SESSION_COMPLETED", http.StatusForbidden, r)
	default:
		writeError(w, err.Error(), "INTERNAL", http.StatusInternalServerError, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Success:   false,
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
