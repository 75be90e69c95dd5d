package gamification

import (
	"fmt"
	"time"

	"lalaquiz-backend/internal/models"
)

type Activity string

const (
	ActivityQuizFinished      Activity = "quiz_finished"
	ActivityFlashcardMastered Activity = "flashcard_mastered"
	ActivityPairMatched       Activity = "pair_matched"
)

const dateLayout = "2006-01-02"

var rewards = map[Activity]int{
	ActivityQuizFinished:      10,
	ActivityFlashcardMastered: 5,
	ActivityPairMatched:       15,
}

// Reward returns the XP granted for an activity.
func Reward(a Activity) (int, error) {
	xp, ok := rewards[a]
	if !ok {
		return 0, fmt.Errorf("unknown activity %q", a)
	}
	return xp, nil
}

// XPForNextLevel is the XP a user at level must collect to level up.
func XPForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * 100
}

// AddXP credits amount to stats. Crossing the threshold of the current level
// moves up exactly one level and carries the remainder over, even when the
// award would cover several thresholds.
func AddXP(stats models.UserStats, amount int) models.UserStats {
	if stats.Level < 1 {
		stats.Level = 1
	}
	stats.XP += amount

	needed := XPForNextLevel(stats.Level)
	if stats.XP >= needed {
		stats.XP -= needed
		stats.Level++
	}
	return stats
}

// TouchStreak records activity on now's UTC day. Same-day activity leaves the
// streak alone, the following day extends it and any gap resets it to 1.
func TouchStreak(stats models.UserStats, now time.Time) models.UserStats {
	today := now.UTC().Format(dateLayout)
	if stats.LastActiveDate == today {
		return stats
	}

	last, err := time.Parse(dateLayout, stats.LastActiveDate)
	switch {
	case err != nil:
		// First recorded activity keeps whatever streak the defaults gave.
		if stats.Streak < 1 {
			stats.Streak = 1
		}
	case last.AddDate(0, 0, 1).Format(dateLayout) == today:
		stats.Streak++
	default:
		stats.Streak = 1
	}

	stats.LastActiveDate = today
	return stats
}

// Record applies an activity to stats: the streak is touched, the reward is
// credited, and a finished quiz also counts its answered questions.
func Record(stats models.UserStats, a Activity, answered int, now time.Time) (models.UserStats, error) {
	xp, err := Reward(a)
	if err != nil {
		return stats, err
	}

	stats = TouchStreak(stats, now)
	if a == ActivityQuizFinished && answered > 0 {
		stats.QuestionsAnswered += answered
	}
	return AddXP(stats, xp), nil
}
