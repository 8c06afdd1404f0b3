package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kickexpert-competition-service/internal/domain"
)

// Store is an in-memory implementation of the competition, registration,
// session, profile, and lobby collaborators. It carries the demo mode and
// most unit tests; the unique-session and unique-answer constraints the
// Postgres schema enforces are mirrored here.
type Store struct {
	mu            sync.RWMutex
	competitions  map[string]domain.Competition
	registrations map[string]domain.Registration // key: competitionID + "/" + userID
	sessions      map[string]domain.Session
	answers       map[string][]domain.AnswerRecord // key: sessionID
	profiles      map[string]string
	lobbies       map[string]map[string]struct{} // competitionID -> user set
}

func NewStore() *Store {
	return &Store{
		competitions:  make(map[string]domain.Competition),
		registrations: make(map[string]domain.Registration),
		sessions:      make(map[string]domain.Session),
		answers:       make(map[string][]domain.AnswerRecord),
		profiles:      make(map[string]string),
		lobbies:       make(map[string]map[string]struct{}),
	}
}

func regKey(competitionID, userID string) string {
	return competitionID + "/" + userID
}

// AddCompetition seeds a competition.
func (s *Store) AddCompetition(c domain.Competition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[c.ID] = c
}

// AddRegistration seeds a registration.
func (s *Store) AddRegistration(r domain.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[regKey(r.CompetitionID, r.UserID)] = r
}

// AddProfile seeds a display name.
func (s *Store) AddProfile(userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = displayName
}

func (s *Store) GetCompetition(_ context.Context, competitionID string) (domain.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.competitions[competitionID]; ok {
		return c, nil
	}
	return domain.Competition{}, domain.ErrCompetitionNotFound
}

func (s *Store) ConfirmedRegistration(_ context.Context, competitionID, userID string) (domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[regKey(competitionID, userID)]
	if !ok || r.Status != domain.RegistrationConfirmed {
		return domain.Registration{}, domain.ErrNotRegistered
	}
	return r, nil
}

func (s *Store) Open(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[regKey(session.CompetitionID, session.UserID)]
	if !ok || r.Status != domain.RegistrationConfirmed {
		return domain.ErrNotRegistered
	}
	// One session per (competition, user), whatever its status.
	for _, existing := range s.sessions {
		if existing.CompetitionID == session.CompetitionID && existing.UserID == session.UserID {
			return domain.ErrSessionExists
		}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) RecordAnswer(_ context.Context, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[record.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.SessionOpen {
		return domain.ErrSessionClosed
	}
	for _, existing := range s.answers[record.SessionID] {
		if existing.QuestionID == record.QuestionID {
			return domain.ErrQuestionClosed
		}
	}
	s.answers[record.SessionID] = append(s.answers[record.SessionID], record)
	return nil
}

func (s *Store) Finalize(_ context.Context, sessionID string, endedAt time.Time, result domain.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.SessionOpen {
		return domain.ErrSessionClosed
	}
	session.Status = domain.SessionFinalized
	session.EndedAt = &endedAt
	session.CorrectAnswers = result.CorrectAnswers
	session.ScorePercentage = result.ScorePercentage
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) MarkAbandoned(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.SessionOpen {
		return domain.ErrSessionClosed
	}
	session.Status = domain.SessionAbandoned
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) FinalizedSessions(_ context.Context, competitionID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, session := range s.sessions {
		if session.CompetitionID == competitionID && session.Status == domain.SessionFinalized {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DisplayNames(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.profiles[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *Store) Announce(_ context.Context, competitionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lobbies[competitionID] == nil {
		s.lobbies[competitionID] = make(map[string]struct{})
	}
	s.lobbies[competitionID][userID] = struct{}{}
	return nil
}

func (s *Store) Registrants(_ context.Context, competitionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.lobbies[competitionID]))
	for id := range s.lobbies[competitionID] {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// SessionByID exposes a stored session for assertions.
func (s *Store) SessionByID(sessionID string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// SessionCount reports how many sessions exist for a competition.
func (s *Store) SessionCount(competitionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, session := range s.sessions {
		if session.CompetitionID == competitionID {
			n++
		}
	}
	return n
}

// AnswersFor returns the recorded answers of a session in write order.
func (s *Store) AnswersFor(sessionID string) []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnswerRecord, len(s.answers[sessionID]))
	copy(out, s.answers[sessionID])
	return out
}
