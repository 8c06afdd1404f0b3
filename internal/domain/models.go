package domain

import "time"

// CompetitionStatus tracks where a competition is in its lifecycle.
// Competitions are created by an admin process; this service only reads them.
type CompetitionStatus string

const (
	CompetitionUpcoming CompetitionStatus = "upcoming"
	CompetitionLive     CompetitionStatus = "live"
	CompetitionClosed   CompetitionStatus = "closed"
)

// Competition is a scheduled trivia event players register for.
type Competition struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	StartsAt   time.Time         `json:"startsAt"`
	EndsAt     time.Time         `json:"endsAt"`
	Status     CompetitionStatus `json:"status"`
	EntryCost  int               `json:"entryCost"` // credits charged at registration
	PrizeTable map[int]int       `json:"prizeTable,omitempty"`
}

// RegistrationStatus gates whether a registration permits play.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
)

// Registration links a user to a competition. Created once at join time by
// the entry/credits endpoint; immutable afterward from this service's view.
type Registration struct {
	CompetitionID string             `json:"competitionId"`
	UserID        string             `json:"userId"`
	Status        RegistrationStatus `json:"status"`
	PaidCredits   int                `json:"paidCredits"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Difficulty tiers a question.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Question is one entry of a competition's merged question set.
// Choices always holds exactly four options; CorrectAnswer is one of them.
type Question struct {
	ID            int64      `json:"id"`
	SourceID      string     `json:"sourceId,omitempty"` // secondary reference when the merged row came from another table
	Category      string     `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	Text          string     `json:"text"`
	Choices       []string   `json:"choices"`
	CorrectAnswer string     `json:"correctAnswer"`
	Explanation   string     `json:"explanation,omitempty"`
}

// QuestionSet is the ordered question list for one competition.
type QuestionSet struct {
	CompetitionID string     `json:"competitionId"`
	Questions     []Question `json:"questions"`
}

// DifficultyCounts tallies questions per tier for a session.
func DifficultyCounts(questions []Question) map[Difficulty]int {
	counts := make(map[Difficulty]int, 3)
	for _, q := range questions {
		counts[q.Difficulty]++
	}
	return counts
}

// SessionStatus resolves what happens to attempts that never complete:
// a session is open while questions are being played, finalized once end
// time and aggregates are written, and abandoned when it can no longer be
// completed. Only finalized sessions enter the standings.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionFinalized SessionStatus = "finalized"
	SessionAbandoned SessionStatus = "abandoned"
)

// Session is one user's single attempt at a competition's question set.
type Session struct {
	ID                  string             `json:"id"`
	CompetitionID       string             `json:"competitionId"`
	UserID              string             `json:"userId"`
	Status              SessionStatus      `json:"status"`
	TotalQuestions      int                `json:"totalQuestions"`
	CorrectAnswers      int                `json:"correctAnswers"`
	ScorePercentage     float64            `json:"scorePercentage"`
	DifficultyBreakdown map[Difficulty]int `json:"difficultyBreakdown"`
	StartedAt           time.Time          `json:"startedAt"`
	EndedAt             *time.Time         `json:"endedAt,omitempty"`
}

// AnswerRecord is the immutable log entry for one resolved question.
// Selected is empty when the question timed out with nothing chosen.
type AnswerRecord struct {
	SessionID     string     `json:"sessionId"`
	CompetitionID string     `json:"competitionId"`
	QuestionID    int64      `json:"questionId"`
	SourceRef     string     `json:"sourceRef,omitempty"`
	Selected      string     `json:"selected"`
	Correct       bool       `json:"correct"`
	Difficulty    Difficulty `json:"difficulty"`
	AnsweredAt    time.Time  `json:"answeredAt"`
}

// SessionResult carries the aggregates computed at finalization.
type SessionResult struct {
	CorrectAnswers  int     `json:"correctAnswers"`
	ScorePercentage float64 `json:"scorePercentage"`
}

// Standing is one row of a competition's final ranking.
type Standing struct {
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	CorrectAnswers  int       `json:"correctAnswers"`
	ScorePercentage float64   `json:"scorePercentage"`
	CompletedAt     time.Time `json:"completedAt"`
	Rank            int       `json:"rank"`
	Trophy          string    `json:"trophy,omitempty"`
	Prize           int       `json:"prize,omitempty"`
}

// Leaderboard is the ranked projection for one competition. Me points at
// the caller's own row when they finished the competition.
type Leaderboard struct {
	CompetitionID string     `json:"competitionId"`
	Entries       []Standing `json:"entries"`
	Me            *Standing  `json:"me,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
