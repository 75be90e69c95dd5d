package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lalaquiz-backend/internal/gamification"
	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/scoring"
	"lalaquiz-backend/internal/sharing"
)

const sharedTitleFallback = "Shared Quiz"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoQuizData      = errors.New("session has no quiz data")
	ErrNothingMissed   = errors.New("no missed questions to retake")
)

// SlotStore is the persistent history and stats collaborator.
type SlotStore interface {
	LoadHistory(ctx context.Context, userID string) ([]models.Session, error)
	SaveHistory(ctx context.Context, userID string, history []models.Session) error
	LoadStats(ctx context.Context, userID string) (models.UserStats, error)
	SaveStats(ctx context.Context, userID string, stats models.UserStats) error
}

// Publisher delivers a message to a user's live clients. It stands in for the
// clipboard when a share link is created.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// VideoSource resolves a video link to a title and transcript.
type VideoSource interface {
	Fetch(ctx context.Context, videoURL string) (title, transcript string, err error)
}

type SessionServiceConfig struct {
	ShareBaseURL      string
	ShareMaxURLLength int
}

// SessionService owns a user's quiz history and stats. Every mutation loads
// the slot, changes it and saves it before returning, under a per-user lock.
type SessionService struct {
	slots     SlotStore
	generator Generator
	files     *FileExtractService
	videos    VideoSource
	publisher Publisher
	cfg       SessionServiceConfig

	locks userLocks
	now   func() time.Time
}

func NewSessionService(
	slots SlotStore,
	generator Generator,
	files *FileExtractService,
	videos VideoSource,
	publisher Publisher,
	cfg SessionServiceConfig,
) *SessionService {
	if files == nil {
		files = NewFileExtractService()
	}
	return &SessionService{
		slots:     slots,
		generator: generator,
		files:     files,
		videos:    videos,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetPublisher attaches the live channel once it exists.
func (s *SessionService) SetPublisher(p Publisher) {
	s.publisher = p
}

type userLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[userID]
	if !ok {
		m = &sync.Mutex{}
		l.m[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ──── Generation ────

// Generate builds a quiz from the request, saves it as the newest session and
// returns that session. The request must already have passed PrepareRequest.
func (s *SessionService) Generate(ctx context.Context, userID uuid.UUID, req models.GenerateQuizRequest) (*models.Session, error) {
	settings := models.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	attachments, err := s.files.Decode(req.Files)
	if err != nil {
		return nil, newValidationError("files", err.Error())
	}
	src := Source{Text: req.Text, Files: attachments}

	var videoTitle string
	if req.YouTubeURL != "" {
		if s.videos == nil {
			return nil, newValidationError("youtube_url", "video sources are not available")
		}
		title, transcript, err := s.videos.Fetch(ctx, req.YouTubeURL)
		if err != nil {
			return nil, newValidationError("youtube_url", err.Error())
		}
		videoTitle = title
		src.Text = strings.TrimSpace(src.Text + "\n\n" + transcript)
	}

	if src.Empty() {
		return nil, newValidationError("text", "provide text, files or a YouTube URL")
	}

	title := DeriveTitle(req, videoTitle)

	quiz, err := s.generator.Generate(ctx, src, settings)
	if err != nil {
		return nil, err
	}
	if err := NormalizeGenerated(quiz, settings, title); err != nil {
		return nil, err
	}

	session := models.Session{
		ID:        uuid.NewString(),
		Timestamp: s.now().UnixMilli(),
		Title:     title,
		Data:      quiz,
	}
	if err := s.prepend(ctx, userID, session); err != nil {
		return nil, err
	}

	log.Printf("Generated quiz %s for user %s via %s (%d questions)", session.ID, userID, s.generator.Name(), len(quiz.Questions))
	return &session, nil
}

func (s *SessionService) prepend(ctx context.Context, userID uuid.UUID, session models.Session) error {
	key := userID.String()
	defer s.locks.lock(key)()

	history, err := s.slots.LoadHistory(ctx, key)
	if err != nil {
		return err
	}
	history = append([]models.Session{session}, history...)
	return s.slots.SaveHistory(ctx, key, history)
}

// ──── Sharing ────

// Share builds a share URL for a saved session.
func (s *SessionService) Share(ctx context.Context, userID uuid.UUID, sessionID string) (string, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	if session.Data == nil {
		return "", ErrNoQuizData
	}
	return s.shareQuiz(ctx, userID, sessionID, session.Data)
}

// ShareQuiz encodes quiz into a share URL and pushes the URL to the user's
// live clients. A URL over the configured length fails with
// sharing.ErrSizeLimitExceeded and nothing is pushed. A failed push is logged
// and the URL is still returned.
func (s *SessionService) ShareQuiz(ctx context.Context, userID uuid.UUID, quiz *models.Quiz) (string, error) {
	return s.shareQuiz(ctx, userID, "", quiz)
}

func (s *SessionService) shareQuiz(ctx context.Context, userID uuid.UUID, sessionID string, quiz *models.Quiz) (string, error) {
	if quiz == nil {
		return "", ErrNoQuizData
	}

	token, err := sharing.Encode(quiz)
	if err != nil {
		log.Printf("Share encode failed for user %s: %v", userID, err)
		return "", err
	}

	shareURL, err := sharing.BuildURL(s.cfg.ShareBaseURL, token, s.cfg.ShareMaxURLLength)
	if err != nil {
		log.Printf("Share link refused for user %s: %v", userID, err)
		return "", err
	}

	s.deliverShareLink(ctx, userID, models.ShareLinkEvent{SessionID: sessionID, URL: shareURL})
	return shareURL, nil
}

func (s *SessionService) deliverShareLink(ctx context.Context, userID uuid.UUID, event models.ShareLinkEvent) {
	if s.publisher == nil {
		log.Printf("ClipboardUnavailable: no live channel for user %s, link returned in response only", userID)
		return
	}
	msg := models.WSMessage{Type: "share_link", Payload: event}
	if err := s.publisher.Publish(ctx, userID, msg); err != nil {
		log.Printf("ClipboardUnavailable: failed to push share link to user %s: %v", userID, err)
	}
}

// LoadShared decodes a share token into a new session at the top of the
// user's history. An invalid token fails with an error matching
// sharing.ErrInvalidToken and leaves the history untouched.
func (s *SessionService) LoadShared(ctx context.Context, userID uuid.UUID, token string) (*models.Session, error) {
	quiz, err := sharing.Decode(token)
	if err != nil {
		log.Printf("Rejected shared link for user %s: %v", userID, err)
		return nil, err
	}

	title := strings.TrimSpace(quiz.Metadata.Source)
	if title == "" {
		title = sharedTitleFallback
	}

	session := models.Session{
		ID:        "shared-" + uuid.NewString(),
		Timestamp: s.now().UnixMilli(),
		Title:     title,
		Data:      quiz,
	}
	if err := s.prepend(ctx, userID, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ──── History ────

func (s *SessionService) List(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return s.slots.LoadHistory(ctx, userID.String())
}

func (s *SessionService) Get(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Session, error) {
	history, err := s.slots.LoadHistory(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID == sessionID {
			return &history[i], nil
		}
	}
	return nil, ErrSessionNotFound
}

// update applies fn to one session and saves the history.
func (s *SessionService) update(ctx context.Context, userID uuid.UUID, sessionID string, fn func(*models.Session)) (*models.Session, error) {
	key := userID.String()
	defer s.locks.lock(key)()

	history, err := s.slots.LoadHistory(ctx, key)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID != sessionID {
			continue
		}
		fn(&history[i])
		if err := s.slots.SaveHistory(ctx, key, history); err != nil {
			return nil, err
		}
		updated := history[i]
		return &updated, nil
	}
	return nil, ErrSessionNotFound
}

func (s *SessionService) Rename(ctx context.Context, userID uuid.UUID, sessionID, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, newValidationError("title", "is required")
	}
	return s.update(ctx, userID, sessionID, func(sess *models.Session) {
		sess.Title = title
	})
}

func (s *SessionService) Delete(ctx context.Context, userID uuid.UUID, sessionID string) error {
	key := userID.String()
	defer s.locks.lock(key)()

	history, err := s.slots.LoadHistory(ctx, key)
	if err != nil {
		return err
	}
	kept := history[:0]
	found := false
	for _, sess := range history {
		if sess.ID == sessionID {
			found = true
			continue
		}
		kept = append(kept, sess)
	}
	if !found {
		return ErrSessionNotFound
	}
	return s.slots.SaveHistory(ctx, key, kept)
}

// ──── Scoring ────

type ScoreOutcome struct {
	Result scoring.Result   `json:"result"`
	Stats  models.UserStats `json:"stats"`
}

// Score grades a finished attempt, stores the percentage on the session and
// credits the quiz-finished reward.
func (s *SessionService) Score(ctx context.Context, userID uuid.UUID, sessionID string, answers scoring.Answers, st models.ScoringType) (*ScoreOutcome, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Data == nil {
		return nil, ErrNoQuizData
	}

	result := scoring.Score(session.Data, answers, st)
	pct := result.Percentage
	if _, err := s.update(ctx, userID, sessionID, func(sess *models.Session) {
		sess.Score = &pct
	}); err != nil {
		return nil, err
	}

	stats, err := s.record(ctx, userID, gamification.ActivityQuizFinished, result.Answered)
	if err != nil {
		return nil, err
	}
	return &ScoreOutcome{Result: result, Stats: stats}, nil
}

// RetakeMissed returns a quiz with only the questions answers got wrong.
func (s *SessionService) RetakeMissed(ctx context.Context, userID uuid.UUID, sessionID string, answers scoring.Answers) (*models.Quiz, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Data == nil {
		return nil, ErrNoQuizData
	}

	result := scoring.Score(session.Data, answers, models.ScoringStandard)
	derived := scoring.RetakeMissed(session.Data, result.Missed)
	if derived == nil {
		return nil, ErrNothingMissed
	}
	return derived, nil
}

// Export renders a session as "json" (full quiz) or "csv" (graded answers).
func (s *SessionService) Export(ctx context.Context, userID uuid.UUID, sessionID, format string, answers scoring.Answers) ([]byte, string, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, "", err
	}
	if session.Data == nil {
		return nil, "", ErrNoQuizData
	}

	switch format {
	case "", "json":
		data, err := scoring.ExportJSON(session.Data)
		return data, "application/json", err
	case "csv":
		data, err := scoring.ExportCSV(session.Data, answers)
		return data, "text/csv", err
	default:
		return nil, "", newValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
}

// ──── Stats ────

func (s *SessionService) Stats(ctx context.Context, userID uuid.UUID) (models.UserStats, error) {
	return s.slots.LoadStats(ctx, userID.String())
}

// AwardXP credits a study activity finished outside a scored quiz.
func (s *SessionService) AwardXP(ctx context.Context, userID uuid.UUID, activity gamification.Activity, answered int) (models.UserStats, error) {
	if _, err := gamification.Reward(activity); err != nil {
		return models.UserStats{}, newValidationError("activity", err.Error())
	}
	return s.record(ctx, userID, activity, answered)
}

func (s *SessionService) record(ctx context.Context, userID uuid.UUID, activity gamification.Activity, answered int) (models.UserStats, error) {
	key := userID.String()
	defer s.locks.lock(key)()

	stats, err := s.slots.LoadStats(ctx, key)
	if err != nil {
		return models.UserStats{}, err
	}
	stats, err = gamification.Record(stats, activity, answered, s.now())
	if err != nil {
		return models.UserStats{}, err
	}
	if err := s.slots.SaveStats(ctx, key, stats); err != nil {
		return models.UserStats{}, err
	}
	return stats, nil
}
