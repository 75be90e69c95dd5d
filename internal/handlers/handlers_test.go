package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lalaquiz-backend/internal/middleware"
	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/repository"
	"lalaquiz-backend/internal/services"
	"lalaquiz-backend/internal/sharing"
	"lalaquiz-backend/internal/store"
)

type stubGenerator struct {
	err error
}

func (s *stubGenerator) Name() string { return "stub" }
func (s *stubGenerator) Close() error { return nil }
func (s *stubGenerator) Generate(_ context.Context, _ services.Source, _ models.QuizSettings) (*models.Quiz, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Quiz{
		Metadata: models.QuizMetadata{Source: "Cell Biology"},
		Questions: []models.Question{
			{ID: 1, Type: models.MultipleChoice, Question: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria"}, CorrectAnswer: "Mitochondria"},
			{ID: 2, Type: models.Identification, Question: "Green pigment?", CorrectAnswer: "Chlorophyll"},
		},
	}, nil
}

func newSessions(gen services.Generator, maxLen int) *services.SessionService {
	return services.NewSessionService(
		store.NewSlots(store.NewMemoryKV()),
		gen, nil, nil, nil,
		services.SessionServiceConfig{ShareBaseURL: "http://localhost:5173/", ShareMaxURLLength: maxLen},
	)
}

// newRequest builds a request as the router would hand it over: user id in
// context and chi URL params resolved.
func newRequest(method, target string, body interface{}, userID uuid.UUID, params map[string]string) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error
}

func generateSession(t *testing.T, sessions *services.SessionService, userID uuid.UUID) *models.Session {
	t.Helper()
	sess, err := sessions.Generate(context.Background(), userID, models.GenerateQuizRequest{Text: "The cell is the basic unit of life."})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return sess
}

// ─── Auth ───

func TestAuthHandler_Guest(t *testing.T) {
	jwtAuth := middleware.NewJWTAuth("test-secret")
	h := NewAuthHandler(jwtAuth)

	rr := httptest.NewRecorder()
	h.Guest(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/guest", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Token  string    `json:"token"`
		UserID uuid.UUID `json:"user_id"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if id, err := jwtAuth.ParseUserID(resp.Token); err != nil || id != resp.UserID {
		t.Fatalf("issued token does not carry user id: %v", err)
	}

	renew := httptest.NewRequest(http.MethodPost, "/api/v1/auth/guest", nil)
	renew.Header.Set("Authorization", "Bearer "+resp.Token)
	rr = httptest.NewRecorder()
	h.Guest(rr, renew)

	var renewed struct {
		UserID uuid.UUID `json:"user_id"`
	}
	json.NewDecoder(rr.Body).Decode(&renewed)
	if renewed.UserID != resp.UserID {
		t.Errorf("expected renewal to keep user %s, got %s", resp.UserID, renewed.UserID)
	}
}

// ─── Generation ───

type fakeQueue struct {
	job *models.Job
}

func (f *fakeQueue) Enqueue(_ context.Context, userID uuid.UUID, req models.GenerateQuizRequest) (*models.Job, error) {
	f.job = &models.Job{ID: uuid.New(), UserID: userID, Request: req, Status: models.JobStatusPending}
	return f.job, nil
}

func (f *fakeQueue) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, repository.ErrJobNotFound
	}
	return f.job, nil
}

func TestQuizHandler_GenerateInline(t *testing.T) {
	h := NewQuizHandler(newSessions(&stubGenerator{}, 0), nil, nil)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Generate(rr, newRequest(http.MethodPost, "/api/v1/quizzes/generate", map[string]string{"text": "Cells and organelles"}, userID, nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Session models.Session `json:"session"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Session.Title != "Cells and organelles" || len(resp.Session.Data.Questions) != 2 {
		t.Errorf("unexpected session %+v", resp.Session)
	}
}

func TestQuizHandler_GenerateQueued(t *testing.T) {
	queue := &fakeQueue{}
	h := NewQuizHandler(newSessions(&stubGenerator{}, 0), queue, queue)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Generate(rr, newRequest(http.MethodPost, "/api/v1/quizzes/generate", map[string]string{"text": "Cells"}, userID, nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if queue.job == nil || queue.job.Request.Settings == nil {
		t.Fatal("expected queued job with default settings")
	}

	rr = httptest.NewRecorder()
	h.GetJob(rr, newRequest(http.MethodGet, "/api/v1/jobs/x", nil, userID, map[string]string{"id": queue.job.ID.String()}))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"pending"`) {
		t.Errorf("unexpected job response %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), `"request"`) {
		t.Error("job response should not echo the request")
	}

	rr = httptest.NewRecorder()
	h.GetJob(rr, newRequest(http.MethodGet, "/api/v1/jobs/x", nil, uuid.New(), map[string]string{"id": queue.job.ID.String()}))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user's job, got %d", rr.Code)
	}
}

func TestQuizHandler_GenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		gen    *stubGenerator
		body   interface{}
		status int
		code   string
	}{
		{"no source", &stubGenerator{}, map[string]string{"text": " "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad settings", &stubGenerator{}, map[string]interface{}{"text": "x", "settings": map[string]interface{}{"number_of_questions": 500}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rate limited", &stubGenerator{err: services.ErrRateLimited}, map[string]string{"text": "x"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"no credential", &stubGenerator{err: services.ErrMissingCredential}, map[string]string{"text": "x"}, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewQuizHandler(newSessions(tc.gen, 0), nil, nil)
			rr := httptest.NewRecorder()
			h.Generate(rr, newRequest(http.MethodPost, "/api/v1/quizzes/generate", tc.body, uuid.New(), nil))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if apiErr := decodeError(t, rr); apiErr.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, apiErr.Code)
			}
		})
	}

	h := NewQuizHandler(newSessions(&stubGenerator{}, 0), nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/generate", strings.NewReader("{"))
	h.Generate(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rr.Code)
	}
}

// ─── Sessions ───

func TestSessionHandler_CRUD(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 0)
	h := NewSessionHandler(sessions)
	userID := uuid.New()
	sess := generateSession(t, sessions, userID)
	params := map[string]string{"id": sess.ID}

	rr := httptest.NewRecorder()
	h.List(rr, newRequest(http.MethodGet, "/api/v1/sessions", nil, userID, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), sess.ID) {
		t.Errorf("unexpected list response %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Rename(rr, newRequest(http.MethodPut, "/api/v1/sessions/"+sess.ID, map[string]string{"title": "Biology"}, userID, params))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"title":"Biology"`) {
		t.Errorf("unexpected rename response %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID, nil, uuid.New(), params))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user's session, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Delete(rr, newRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil, userID, params))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 on delete, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID, nil, userID, params))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestSessionHandler_Share(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 10000000)
	h := NewSessionHandler(sessions)
	userID := uuid.New()
	sess := generateSession(t, sessions, userID)

	rr := httptest.NewRecorder()
	h.Share(rr, newRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/share", nil, userID, map[string]string{"id": sess.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.HasSuffix(resp["url"], "share="+resp["token"]) {
		t.Errorf("url %q does not carry token %q", resp["url"], resp["token"])
	}
	quiz, err := sharing.Decode(resp["token"])
	if err != nil || quiz.Metadata.Source != "Cell Biology" {
		t.Errorf("token does not decode to the session quiz: %v", err)
	}
}

func TestSessionHandler_ShareTooLarge(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 40)
	h := NewSessionHandler(sessions)
	userID := uuid.New()
	sess := generateSession(t, sessions, userID)

	rr := httptest.NewRecorder()
	h.Share(rr, newRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/share", nil, userID, map[string]string{"id": sess.ID}))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != "SHARE_TOO_LARGE" || apiErr.Message != "Quiz is too large for a link. Try exporting as JSON." {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestSessionHandler_ScoreRetakeExport(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 0)
	h := NewSessionHandler(sessions)
	userID := uuid.New()
	sess := generateSession(t, sessions, userID)
	params := map[string]string{"id": sess.ID}
	answers := map[string]interface{}{"answers": map[string]string{"1": "mitochondria"}, "scoring_type": "Weighted"}

	rr := httptest.NewRecorder()
	h.Score(rr, newRequest(http.MethodPost, "/score", answers, userID, params))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var outcome services.ScoreOutcome
	json.NewDecoder(rr.Body).Decode(&outcome)
	if outcome.Result.Score != 1 || outcome.Result.MaxScore != 3 || outcome.Stats.XP != 10 {
		t.Errorf("unexpected outcome %+v", outcome)
	}

	rr = httptest.NewRecorder()
	h.RetakeMissed(rr, newRequest(http.MethodPost, "/retake-missed", answers, userID, params))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Green pigment?") || strings.Contains(rr.Body.String(), "Powerhouse") {
		t.Errorf("unexpected retake response %d: %s", rr.Code, rr.Body.String())
	}

	perfect := map[string]interface{}{"answers": map[string]string{"1": "Mitochondria", "2": "chlorophyll"}}
	rr = httptest.NewRecorder()
	h.RetakeMissed(rr, newRequest(http.MethodPost, "/retake-missed", perfect, userID, params))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 when nothing was missed, got %d", rr.Code)
	}

	target := "/export?format=csv&answers=" + url.QueryEscape(`{"1":"Nucleus"}`)
	rr = httptest.NewRecorder()
	h.Export(rr, newRequest(http.MethodGet, target, nil, userID, params))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected export response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "Nucleus,FALSE") {
		t.Errorf("expected graded answer in csv, got %q", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), ".csv") {
		t.Errorf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}

	rr = httptest.NewRecorder()
	h.Export(rr, newRequest(http.MethodGet, "/export?format=xml", nil, userID, params))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", rr.Code)
	}
}

// ─── Shared links ───

func TestShareHandler_LoadShared(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 0)
	h := NewShareHandler(sessions, "http://localhost:5173/")
	userID := uuid.New()

	quiz, _ := (&stubGenerator{}).Generate(context.Background(), services.Source{}, models.DefaultSettings())
	token, err := sharing.Encode(quiz)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	page := url.QueryEscape("http://localhost:5173/?lang=en&share=" + token)
	rr := httptest.NewRecorder()
	h.LoadShared(rr, newRequest(http.MethodGet, "/api/v1/shared?share="+token+"&page="+page, nil, userID, nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Session  models.Session `json:"session"`
		CleanURL string         `json:"clean_url"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.HasPrefix(resp.Session.ID, "shared-") || resp.Session.Title != "Cell Biology" {
		t.Errorf("unexpected imported session %+v", resp.Session)
	}
	if resp.CleanURL != "http://localhost:5173/?lang=en" {
		t.Errorf("unexpected clean url %q", resp.CleanURL)
	}
}

func TestShareHandler_LoadSharedInvalid(t *testing.T) {
	sessions := newSessions(&stubGenerator{}, 0)
	h := NewShareHandler(sessions, "http://localhost:5173/")
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.LoadShared(rr, newRequest(http.MethodGet, "/api/v1/shared?share=not-a-valid-token", nil, userID, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != "INVALID_SHARE_LINK" || apiErr.Message != "Invalid or expired shared link." {
		t.Errorf("unexpected error %+v", apiErr)
	}

	history, _ := sessions.List(context.Background(), userID)
	if len(history) != 0 {
		t.Errorf("expected no session imported, got %d", len(history))
	}

	rr = httptest.NewRecorder()
	h.LoadShared(rr, newRequest(http.MethodGet, "/api/v1/shared", nil, userID, nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without token, got %d", rr.Code)
	}
}

func TestShareHandler_Encode(t *testing.T) {
	h := NewShareHandler(newSessions(&stubGenerator{}, 0), "http://localhost:5173/")
	quiz, _ := (&stubGenerator{}).Generate(context.Background(), services.Source{}, models.DefaultSettings())

	rr := httptest.NewRecorder()
	h.Encode(rr, newRequest(http.MethodPost, "/api/v1/share/encode", map[string]interface{}{"quiz": quiz}, uuid.New(), nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "?share=") {
		t.Errorf("unexpected encode response %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Encode(rr, newRequest(http.MethodPost, "/api/v1/share/encode", map[string]interface{}{}, uuid.New(), nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without quiz, got %d", rr.Code)
	}
}

// ─── Stats ───

func TestStatsHandler(t *testing.T) {
	h := NewStatsHandler(newSessions(&stubGenerator{}, 0))
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/api/v1/stats", nil, userID, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"level":1`) || !strings.Contains(rr.Body.String(), `"xp_for_next_level":100`) {
		t.Errorf("unexpected stats response %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.AwardXP(rr, newRequest(http.MethodPost, "/api/v1/stats/xp", map[string]string{"activity": "pair_matched"}, userID, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"xp":15`) {
		t.Errorf("unexpected award response %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.AwardXP(rr, newRequest(http.MethodPost, "/api/v1/stats/xp", map[string]string{"activity": "napping"}, userID, nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown activity, got %d", rr.Code)
	}
}
