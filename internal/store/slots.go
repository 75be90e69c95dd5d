package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"lalaquiz-backend/internal/models"
)

const (
	historySlot = "quiz_history"
	statsSlot   = "quiz_user_stats"
)

func historyKey(userID string) string { return historySlot + ":" + userID }
func statsKey(userID string) string   { return statsSlot + ":" + userID }

// Slots reads and writes the per-user history and stats slots. Missing slots
// load as their defaults: an empty history and DefaultUserStats. A slot whose
// contents no longer parse is logged and also treated as missing.
type Slots struct {
	kv KV
}

func NewSlots(kv KV) *Slots {
	return &Slots{kv: kv}
}

func (s *Slots) LoadHistory(ctx context.Context, userID string) ([]models.Session, error) {
	history := []models.Session{}
	found, err := s.load(ctx, historyKey(userID), &history)
	if err != nil {
		return nil, err
	}
	if !found || history == nil {
		return []models.Session{}, nil
	}
	return history, nil
}

func (s *Slots) SaveHistory(ctx context.Context, userID string, history []models.Session) error {
	if history == nil {
		history = []models.Session{}
	}
	return s.save(ctx, historyKey(userID), history)
}

func (s *Slots) LoadStats(ctx context.Context, userID string) (models.UserStats, error) {
	stats := models.DefaultUserStats()
	found, err := s.load(ctx, statsKey(userID), &stats)
	if err != nil {
		return models.UserStats{}, err
	}
	if !found {
		return models.DefaultUserStats(), nil
	}
	return stats, nil
}

func (s *Slots) SaveStats(ctx context.Context, userID string, stats models.UserStats) error {
	return s.save(ctx, statsKey(userID), stats)
}

// load reports false when the key is absent or unreadable.
func (s *Slots) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("Discarding unreadable slot %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (s *Slots) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
