package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"kickexpert-competition-service/internal/domain"
)

// CompetitionRepository reads competition metadata (admin-created, read-only here).
type CompetitionRepository interface {
	GetCompetition(ctx context.Context, competitionID string) (domain.Competition, error)
}

// RegistrationRepository gates session start on a confirmed registration.
type RegistrationRepository interface {
	// ConfirmedRegistration returns the confirmed registration for the pair,
	// or domain.ErrNotRegistered when none exists.
	ConfirmedRegistration(ctx context.Context, competitionID, userID string) (domain.Registration, error)
}

// QuestionRepository loads the merged, ordered question set for a competition
// (from cache or backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, competitionID string) (domain.QuestionSet, error)
}

// SessionRecorder persists the session lifecycle: open, one record per
// answered question, and a single finalizing update.
type SessionRecorder interface {
	Open(ctx context.Context, session domain.Session) error
	RecordAnswer(ctx context.Context, record domain.AnswerRecord) error
	Finalize(ctx context.Context, sessionID string, endedAt time.Time, result domain.SessionResult) error
	MarkAbandoned(ctx context.Context, sessionID string) error
}

// StandingsSource reads finalized sessions for ranking.
type StandingsSource interface {
	FinalizedSessions(ctx context.Context, competitionID string) ([]domain.Session, error)
}

// ProfileDirectory resolves display names in one batch lookup.
type ProfileDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// LobbyPresence tracks which registrants are waiting in a competition lobby.
type LobbyPresence interface {
	Announce(ctx context.Context, competitionID, userID string) error
	Registrants(ctx context.Context, competitionID string) ([]string, error)
}

// Deps bundles the collaborators a Service needs.
type Deps struct {
	Competitions  CompetitionRepository
	Registrations RegistrationRepository
	Questions     QuestionRepository
	Recorder      SessionRecorder
	Standings     StandingsSource
	Profiles      ProfileDirectory
	Lobby         LobbyPresence // optional
}

// Timing holds the countdown durations for a session run.
type Timing struct {
	LobbyMax     time.Duration // clamp on the waiting-room countdown
	QuestionTime time.Duration // fixed per-question countdown
}

func (t Timing) withDefaults() Timing {
	if t.LobbyMax <= 0 {
		t.LobbyMax = 2 * time.Minute
	}
	if t.QuestionTime <= 0 {
		t.QuestionTime = 15 * time.Second
	}
	return t
}

// Service contains the competition session use cases.
type Service struct {
	deps   Deps
	timing Timing
	now    func() time.Time
	newID  func() string
}

func NewService(deps Deps, timing Timing) *Service {
	return NewServiceWithClock(deps, timing, time.Now)
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(deps Deps, timing Timing, now func() time.Time) *Service {
	return &Service{
		deps:   deps,
		timing: timing.withDefaults(),
		now:    now,
		newID:  uuid.NewString,
	}
}

// StartRun checks the registration gate, loads the question set, and returns
// a fresh run in the waiting phase. No session row exists until the quiz
// phase begins. Gate and loader failures are fatal: the caller must re-enter
// the flow, nothing is retried here.
func (s *Service) StartRun(ctx context.Context, competitionID, userID string) (*Run, error) {
	competition, err := s.deps.Competitions.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.deps.Registrations.ConfirmedRegistration(ctx, competitionID, userID); err != nil {
		return nil, err
	}

	set, err := s.deps.Questions.GetQuestionSet(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if len(set.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	if s.deps.Lobby != nil {
		// Best effort; lobby visibility is supplementary.
		if err := s.deps.Lobby.Announce(ctx, competitionID, userID); err != nil {
			log.Printf("lobby announce failed for %s/%s: %v", competitionID, userID, err)
		}
	}

	return newRun(s, competition, userID, set.Questions), nil
}

// Standings returns the ranked board for a competition with display names
// resolved in one batch. Ranking works only over finalized sessions; name
// and prize resolution are best effort and fall back rather than block.
func (s *Service) Standings(ctx context.Context, competitionID, currentUserID string) (domain.Leaderboard, error) {
	sessions, err := s.deps.Standings.FinalizedSessions(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := RankSessions(sessions)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	var names map[string]string
	if len(ids) > 0 {
		names, err = s.deps.Profiles.DisplayNames(ctx, ids)
		if err != nil {
			log.Printf("profile lookup failed for competition %s: %v", competitionID, err)
			names = nil
		}
	}

	var prizeTable map[int]int
	if competition, err := s.deps.Competitions.GetCompetition(ctx, competitionID); err == nil {
		prizeTable = competition.PrizeTable
	} else {
		log.Printf("prize table unavailable for competition %s: %v", competitionID, err)
	}

	board := domain.Leaderboard{
		CompetitionID: competitionID,
		Entries:       entries,
		UpdatedAt:     s.now(),
	}
	for i := range board.Entries {
		e := &board.Entries[i]
		if name, ok := names[e.UserID]; ok && name != "" {
			e.DisplayName = name
		} else {
			e.DisplayName = "Player"
		}
		e.Prize = PrizeForRank(prizeTable, e.Rank)
		if e.UserID == currentUserID {
			me := *e
			board.Me = &me
		}
	}
	return board, nil
}
