package app

import (
	"sort"

	"kickexpert-competition-service/internal/domain"
)

// Correct-answer thresholds for the post-game recommendation tiers.
const (
	tierEliteMin      = 16
	tierProMin        = 13
	tierChallengerMin = 10
)

// TierMessage maps a final correct-answer count to its recommendation tier.
func TierMessage(correctAnswers int) string {
	switch {
	case correctAnswers >= tierEliteMin:
		return "Elite League Champion!"
	case correctAnswers >= tierProMin:
		return "Pro League Star!"
	case correctAnswers >= tierChallengerMin:
		return "League Challenger!"
	default:
		return "Keep Practicing!"
	}
}

// TrophyForRank returns the trophy awarded at a final rank, or "" for none.
func TrophyForRank(rank int) string {
	switch rank {
	case 1:
		return "gold"
	case 2:
		return "silver"
	case 3:
		return "bronze"
	default:
		return ""
	}
}

// PrizeForRank looks up the payout for a rank in a competition's prize table.
func PrizeForRank(table map[int]int, rank int) int {
	if table == nil {
		return 0
	}
	return table[rank]
}

// StandingLess orders two standings: more correct answers first, ties broken
// by earlier completion (faster finish ranks higher), then by user id so the
// order is total.
func StandingLess(a, b domain.Standing) bool {
	if a.CorrectAnswers != b.CorrectAnswers {
		return a.CorrectAnswers > b.CorrectAnswers
	}
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.UserID < b.UserID
}

// RankSessions projects finalized sessions into ranked standings.
// Sessions without an end time are skipped; an open or abandoned attempt
// never enters the board.
func RankSessions(sessions []domain.Session) []domain.Standing {
	entries := make([]domain.Standing, 0, len(sessions))
	for _, s := range sessions {
		if s.Status != domain.SessionFinalized || s.EndedAt == nil {
			continue
		}
		entries = append(entries, domain.Standing{
			UserID:          s.UserID,
			CorrectAnswers:  s.CorrectAnswers,
			ScorePercentage: s.ScorePercentage,
			CompletedAt:     *s.EndedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return StandingLess(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Trophy = TrophyForRank(i + 1)
	}
	return entries
}
