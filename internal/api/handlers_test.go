package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"exam-judge/internal/judge"
	"exam-judge/internal/language"
	"exam-judge/internal/monitor"
	"exam-judge/internal/session"
	"exam-judge/internal/store"
)

// fakeGrader scripts Grade responses for handler tests.
type fakeGrader struct {
	results []judge.TestCaseResult
	err     error

	gotUserID string
	gotLang   string
	gotGraded bool
	gotCases  []judge.TestCase
}

func (g *fakeGrader) Grade(ctx context.Context, userID, source, lang string, cases []judge.TestCase, graded bool) ([]judge.TestCaseResult, error) {
	g.gotUserID = userID
	g.gotLang = lang
	g.gotGraded = graded
	g.gotCases = cases
	if g.err != nil {
		return nil, g.err
	}
	return g.results, nil
}

type fakeWiper struct {
	wiped []string
}

func (w *fakeWiper) Wipe(userID string) error {
	w.wiped = append(w.wiped, userID)
	return nil
}

type handlerFixture struct {
	handlers *Handlers
	grader   *fakeGrader
	sessions *session.Store
	results  *store.FileStore
	wiper    *fakeWiper
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	results, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	grader := &fakeGrader{}
	sessions := session.NewStore(nil)
	wiper := &fakeWiper{}

	h := NewHandlers(grader, sessions, results, wiper, monitor.NewMetrics(), 30*time.Minute, 1<<20)
	return &handlerFixture{handlers: h, grader: grader, sessions: sessions, results: results, wiper: wiper}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHandleLogin(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.handlers.HandleLogin, `{"userId":"alice","mode":"practice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if err := f.sessions.Validate("alice"); err != nil {
		t.Errorf("session not created: %v", err)
	}
	if len(f.wiper.wiped) != 1 || f.wiper.wiped[0] != "alice" {
		t.Errorf("scratch wipe on login = %v, want [alice]", f.wiper.wiped)
	}
}

func TestHandleLogin_TimedDefaultBudget(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.handlers.HandleLogin, `{"userId":"bob","mode":"timed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	snap, err := f.sessions.State("bob")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Mode != session.ModeTimed {
		t.Errorf("Mode = %q, want timed", snap.Mode)
	}
	if snap.RemainingSeconds == nil || *snap.RemainingSeconds <= 0 {
		t.Errorf("RemainingSeconds = %v, want the default budget applied", snap.RemainingSeconds)
	}
}

func TestHandleLogin_Validation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing user", `{"mode":"practice"}`},
		{"bad mode", `{"userId":"x","mode":"exam"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, f.handlers.HandleLogin, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Code != "INVALID_REQUEST" {
				t.Errorf("code = %q, want INVALID_REQUEST", resp.Code)
			}
		})
	}
}

func TestHandleUserState(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.Login("carol", session.ModePractice, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/user-state?userId=carol", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleUserState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp UserStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session.Mode != "practice" || resp.Session.Disqualified || resp.Session.Completed {
		t.Errorf("session view = %+v", resp.Session)
	}
	if resp.Session.RemainingTimeSeconds != nil {
		t.Error("practice session must omit remaining time")
	}
}

func TestHandleUserState_Unknown(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user-state?userId=ghost", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleUserState(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "SESSION_NOT_FOUND" {
		t.Errorf("code = %q, want SESSION_NOT_FOUND", resp.Code)
	}
}

func TestHandleDisqualify(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.Login("dave", session.ModePractice, 0)

	rec := postJSON(t, f.handlers.HandleDisqualify, `{"userId":"dave"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/user-state?userId=dave", nil)
	stateRec := httptest.NewRecorder()
	f.handlers.HandleUserState(stateRec, req)

	var resp UserStateResponse
	if err := json.Unmarshal(stateRec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Session.Disqualified {
		t.Error("session not disqualified")
	}
}

func TestHandleSwitchMode(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.Login("erin", session.ModePractice, 0)

	rec := postJSON(t, f.handlers.HandleSwitchMode, `{"userId":"erin","timeBudgetSeconds":600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	snap, err := f.sessions.State("erin")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Mode != session.ModeTimed {
		t.Errorf("Mode = %q, want timed", snap.Mode)
	}
	if snap.RemainingSeconds == nil || *snap.RemainingSeconds > 600 {
		t.Errorf("RemainingSeconds = %v, want at most 600", snap.RemainingSeconds)
	}
}

func TestHandleRun_PassesThrough(t *testing.T) {
	f := newHandlerFixture(t)
	f.grader.results = []judge.TestCaseResult{
		{Input: "1", ExpectedOutput: "1", ActualOutput: "1", Status: judge.StatusSuccess},
	}

	rec := postJSON(t, f.handlers.HandleRun("csharp"),
		`{"userId":"frank","code":"class P {}","testCases":[{"input":"1","expectedOutput":"1"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if f.grader.gotUserID != "frank" || f.grader.gotLang != "csharp" || f.grader.gotGraded {
		t.Errorf("grader called with userID=%q lang=%q graded=%v", f.grader.gotUserID, f.grader.gotLang, f.grader.gotGraded)
	}
	if len(f.grader.gotCases) != 1 || f.grader.gotCases[0].Input != "1" {
		t.Errorf("cases = %+v", f.grader.gotCases)
	}

	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Output) != 1 || resp.Output[0].Status != judge.StatusSuccess {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleRun_GradedReturnsEmptyOutput(t *testing.T) {
	f := newHandlerFixture(t)
	f.grader.results = []judge.TestCaseResult{}

	rec := postJSON(t, f.handlers.HandleRun("typescript"),
		`{"userId":"grace","code":"x","isGraded":true,"testCases":[{"input":"1","expectedOutput":"1"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !f.grader.gotGraded {
		t.Error("isGraded flag not forwarded")
	}

	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Output) != 0 {
		t.Errorf("graded output = %+v, want empty", resp.Output)
	}
	if !strings.Contains(rec.Body.String(), `"output":[]`) {
		t.Errorf("body = %s, want an explicit empty array", rec.Body.String())
	}
}

func TestHandleRun_Validation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"code":"x","testCases":[{"input":"1"}]}`},
		{"missing code", `{"userId":"x","testCases":[{"input":"1"}]}`},
		{"missing cases", `{"userId":"x","code":"y"}`},
		{"empty cases", `{"userId":"x","code":"y","testCases":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, f.handlers.HandleRun("csharp"), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleRun_CodeSizeLimit(t *testing.T) {
	f := newHandlerFixture(t)
	f.handlers.maxCodeBytes = 10

	rec := postJSON(t, f.handlers.HandleRun("csharp"),
		`{"userId":"x","code":"0123456789ABCDEF","testCases":[{"input":"1","expectedOutput":"1"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRun_SessionErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{session.ErrNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{session.ErrExpired, http.StatusForbidden, "SESSION_EXPIRED"},
		{session.ErrDisqualified, http.StatusForbidden, "SESSION_DISQUALIFIED"},
		{session.ErrCompleted, http.StatusForbidden, "SESSION_COMPLETED"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.grader.err = tt.err

			rec := postJSON(t, f.handlers.HandleRun("csharp"),
				`{"userId":"x","code":"y","testCases":[{"input":"1","expectedOutput":"1"}]}`)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if resp := decodeError(t, rec); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestHandleRun_UnsupportedLanguage(t *testing.T) {
	f := newHandlerFixture(t)
	f.grader.err = language.ErrUnsupported

	rec := postJSON(t, f.handlers.HandleRun("cobol"),
		`{"userId":"x","code":"y","testCases":[{"input":"1","expectedOutput":"1"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "UNSUPPORTED_LANGUAGE" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestHandleGetResult(t *testing.T) {
	f := newHandlerFixture(t)
	stored := []judge.TestCaseResult{
		{Input: "1", ExpectedOutput: "2", ActualOutput: "2", Status: judge.StatusSuccess},
	}
	if err := f.results.SaveResults("heidi", stored); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/get-result?userId=heidi", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleGetResult(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Output) != 1 || resp.Output[0] != stored[0] {
		t.Errorf("output = %+v", resp.Output)
	}
}

func TestHandleGetResult_MalformedUserID(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/get-result?userId=..%2Fescape", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleGetResult(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", resp.Code)
	}
}

func TestHandleGetResult_NeverSubmitted(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/get-result?userId=nobody", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleGetResult(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"output":[]`) {
		t.Errorf("body = %s, want an empty array", rec.Body.String())
	}
}
