package models

import "time"

// Session is one generated or imported quiz saved in a user's history.
type Session struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Title     string `json:"title"`
	Data      *Quiz  `json:"data"`
	Score     *int   `json:"score,omitempty"` // last percentage
}

func (s *Session) CreatedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

type UserStats struct {
	XP                int    `json:"xp"`
	Level             int    `json:"level"`
	Streak            int    `json:"streak"`
	QuestionsAnswered int    `json:"questionsAnswered"`
	LastActiveDate    string `json:"lastActiveDate,omitempty"` // YYYY-MM-DD, UTC
}

func DefaultUserStats() UserStats {
	return UserStats{XP: 0, Level: 1, Streak: 1, QuestionsAnswered: 0}
}
