package app

import (
	"context"
	"log"
	"sync"
	"time"

	"kickexpert-competition-service/internal/domain"
)

// Phase names the states a session run moves through.
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseQuiz        Phase = "quiz"
	PhaseResults     Phase = "results"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseError       Phase = "error"
)

// QuestionView is what a player sees for the current question. The correct
// answer is never part of it; that only appears in the Reveal.
type QuestionView struct {
	Index      int               `json:"index"`
	Total      int               `json:"total"`
	Category   string            `json:"category"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Text       string            `json:"text"`
	Choices    []string          `json:"choices"`
	Deadline   time.Time         `json:"deadline"`
}

// Reveal shows how a question resolved.
type Reveal struct {
	Index         int    `json:"index"`
	Selected      string `json:"selected"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
	TimedOut      bool   `json:"timedOut"`
}

// ResultsView is the final scorecard for a run.
type ResultsView struct {
	CorrectAnswers  int     `json:"correctAnswers"`
	TotalQuestions  int     `json:"totalQuestions"`
	ScorePercentage float64 `json:"scorePercentage"`
	Tier            string  `json:"tier"`
	Celebrate       bool    `json:"celebrate"`
}

// Outcome describes what a transition produced so the transport can render
// it: a reveal, the next question, final results, or just the new phase.
type Outcome struct {
	Phase    Phase         `json:"phase"`
	Question *QuestionView `json:"question,omitempty"`
	Reveal   *Reveal       `json:"reveal,omitempty"`
	Results  *ResultsView  `json:"results,omitempty"`
}

// Run is one user's attempt at a competition: an explicit session context
// carried through every transition instead of ambient shared state.
// Phases: waiting -> quiz -> results -> leaderboard, with a terminal error
// phase reachable from any point.
//
// The busy latch admits at most one outstanding open/answer/finalize write;
// every write is awaited, so the run never advances past an answer whose
// write result is unknown.
type Run struct {
	svc         *Service
	now         func() time.Time
	timing      Timing
	competition domain.Competition
	userID      string
	questions   []domain.Question

	mu               sync.Mutex
	phase            Phase
	lobbyDeadline    time.Time
	session          domain.Session
	answers          []domain.AnswerRecord
	index            int
	selected         string
	revealed         bool
	lastReveal       Reveal
	busy             bool
	questionDeadline time.Time
	writeFailures    int
	finalizeFailed   bool
	failure          error
}

func newRun(svc *Service, competition domain.Competition, userID string, questions []domain.Question) *Run {
	now := svc.now()
	remaining := competition.StartsAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > svc.timing.LobbyMax {
		remaining = svc.timing.LobbyMax
	}
	return &Run{
		svc:           svc,
		now:           svc.now,
		timing:        svc.timing,
		competition:   competition,
		userID:        userID,
		questions:     questions,
		phase:         PhaseWaiting,
		lobbyDeadline: now.Add(remaining),
	}
}

// Phase reports the current phase.
func (r *Run) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Competition returns the competition this run plays.
func (r *Run) Competition() domain.Competition { return r.competition }

// UserID returns the player.
func (r *Run) UserID() string { return r.userID }

// LobbyRemaining reports how long the waiting countdown has left.
func (r *Run) LobbyRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := r.lobbyDeadline.Sub(r.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Deadline reports the next timer the transport should arm: the lobby
// countdown while waiting, or the current question's countdown while it is
// unresolved. ok is false when nothing is pending (revealed question,
// results, error).
func (r *Run) Deadline() (phase Phase, index int, deadline time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseWaiting:
		return PhaseWaiting, 0, r.lobbyDeadline, true
	case PhaseQuiz:
		if r.revealed || r.busy {
			return r.phase, 0, time.Time{}, false
		}
		return PhaseQuiz, r.index, r.questionDeadline, true
	default:
		return r.phase, 0, time.Time{}, false
	}
}

// Registrants polls the lobby for confirmed registrants, for display while
// the countdown runs.
func (r *Run) Registrants(ctx context.Context) ([]string, error) {
	if r.svc.deps.Lobby == nil {
		return nil, nil
	}
	return r.svc.deps.Lobby.Registrants(ctx, r.competition.ID)
}

// Failure returns the error that put the run into the error phase.
func (r *Run) Failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// BeginQuiz opens the session and serves the first question. It fires when
// the lobby countdown reaches zero; calling early returns ErrLobbyActive.
// An open failure is fatal: no partial session is left usable.
func (r *Run) BeginQuiz(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	if r.phase != PhaseWaiting {
		phase := r.phase
		r.mu.Unlock()
		return Outcome{Phase: phase}, domain.ErrWrongPhase
	}
	if r.busy {
		r.mu.Unlock()
		return Outcome{Phase: PhaseWaiting}, domain.ErrAnswerPending
	}
	now := r.now()
	if now.Before(r.lobbyDeadline) {
		r.mu.Unlock()
		return Outcome{Phase: PhaseWaiting}, domain.ErrLobbyActive
	}
	session := domain.Session{
		ID:                  r.svc.newID(),
		CompetitionID:       r.competition.ID,
		UserID:              r.userID,
		Status:              domain.SessionOpen,
		TotalQuestions:      len(r.questions),
		DifficultyBreakdown: domain.DifficultyCounts(r.questions),
		StartedAt:           now,
	}
	r.busy = true
	r.mu.Unlock()

	err := r.svc.deps.Recorder.Open(ctx, session)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	if err != nil {
		r.phase = PhaseError
		r.failure = err
		return Outcome{Phase: PhaseError}, err
	}
	r.session = session
	r.phase = PhaseQuiz
	r.index = 0
	r.selected = ""
	r.revealed = false
	r.questionDeadline = r.now().Add(r.timing.QuestionTime)
	return Outcome{Phase: PhaseQuiz, Question: r.questionViewLocked()}, nil
}

// Select captures the player's choice for the current question. Re-selection
// is allowed while the timer runs and no result has been revealed.
func (r *Run) Select(choice string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseQuiz {
		return domain.ErrWrongPhase
	}
	if r.revealed {
		return domain.ErrQuestionClosed
	}
	if r.busy {
		return domain.ErrAnswerPending
	}
	if r.now().After(r.questionDeadline) {
		return domain.ErrQuestionClosed
	}
	question := r.questions[r.index]
	valid := false
	for _, c := range question.Choices {
		if c == choice {
			valid = true
			break
		}
	}
	if !valid {
		return domain.ErrInvalidChoice
	}
	r.selected = choice
	return nil
}

// Submit resolves the current question with the captured choice and returns
// the reveal. Advancing afterwards is the player's move.
func (r *Run) Submit(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	if r.phase != PhaseQuiz {
		phase := r.phase
		r.mu.Unlock()
		return Outcome{Phase: phase}, domain.ErrWrongPhase
	}
	if r.revealed {
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz}, domain.ErrQuestionClosed
	}
	if r.busy {
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz}, domain.ErrAnswerPending
	}
	if r.selected == "" {
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz}, domain.ErrNoSelection
	}
	record := r.buildRecordLocked(r.selected)
	r.busy = true
	r.mu.Unlock()

	writeErr := r.svc.deps.Recorder.RecordAnswer(ctx, record)

	r.mu.Lock()
	defer r.mu.Unlock()
	reveal := r.applyRevealLocked(record, false, writeErr)
	r.busy = false
	return Outcome{Phase: PhaseQuiz, Reveal: &reveal}, nil
}

// ExpireQuestion is the timer entry point for question index. Stale or
// premature callbacks are no-ops: fired is false when the run moved on, the
// deadline has not passed, or the question already resolved. When the timer
// catches an unselected question, the skip is recorded and the run advances
// immediately; a selected-but-unconfirmed choice is resolved and the run
// waits for an explicit advance.
func (r *Run) ExpireQuestion(ctx context.Context, index int) (Outcome, bool) {
	r.mu.Lock()
	if r.phase != PhaseQuiz || index != r.index || r.revealed || r.busy {
		r.mu.Unlock()
		return Outcome{}, false
	}
	if r.now().Before(r.questionDeadline) {
		r.mu.Unlock()
		return Outcome{}, false
	}
	choice := r.selected
	record := r.buildRecordLocked(choice)
	r.busy = true
	r.mu.Unlock()

	writeErr := r.svc.deps.Recorder.RecordAnswer(ctx, record)

	r.mu.Lock()
	reveal := r.applyRevealLocked(record, true, writeErr)
	if choice != "" {
		r.busy = false
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz, Reveal: &reveal}, true
	}
	if r.index+1 < len(r.questions) {
		r.advanceQuestionLocked()
		out := Outcome{Phase: PhaseQuiz, Reveal: &reveal, Question: r.questionViewLocked()}
		r.busy = false
		r.mu.Unlock()
		return out, true
	}
	r.mu.Unlock()

	out := r.finalizeStep(ctx) // clears busy
	out.Reveal = &reveal
	return out, true
}

// Advance moves past a revealed question: the next question, or finalization
// and the results phase after the last one.
func (r *Run) Advance(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	if r.phase != PhaseQuiz {
		phase := r.phase
		r.mu.Unlock()
		return Outcome{Phase: phase}, domain.ErrWrongPhase
	}
	if r.busy {
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz}, domain.ErrAnswerPending
	}
	if !r.revealed {
		r.mu.Unlock()
		return Outcome{Phase: PhaseQuiz}, domain.ErrNotRevealed
	}
	if r.index+1 < len(r.questions) {
		r.advanceQuestionLocked()
		out := Outcome{Phase: PhaseQuiz, Question: r.questionViewLocked()}
		r.mu.Unlock()
		return out, nil
	}
	r.busy = true
	r.mu.Unlock()
	return r.finalizeStep(ctx), nil
}

// Results returns the scorecard once the run reached the results phase.
func (r *Run) Results() (ResultsView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseResults && r.phase != PhaseLeaderboard {
		return ResultsView{}, domain.ErrWrongPhase
	}
	return r.resultsViewLocked(), nil
}

// Leaderboard fetches the ranked board, with the caller's own row surfaced
// on it, and transitions to the leaderboard phase. A failed fetch leaves the
// run on the results phase so the request can simply be repeated.
func (r *Run) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	r.mu.Lock()
	if r.phase != PhaseResults && r.phase != PhaseLeaderboard {
		r.mu.Unlock()
		return domain.Leaderboard{}, domain.ErrWrongPhase
	}
	r.mu.Unlock()

	board, err := r.svc.Standings(ctx, r.competition.ID, r.userID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	r.mu.Lock()
	r.phase = PhaseLeaderboard
	r.mu.Unlock()
	return board, nil
}

// Abandon marks the session abandoned when the player disconnects mid-quiz.
// Runs outside the quiz phase have nothing to abandon.
func (r *Run) Abandon(ctx context.Context) {
	r.mu.Lock()
	if r.phase != PhaseQuiz || r.session.ID == "" {
		r.mu.Unlock()
		return
	}
	sessionID := r.session.ID
	r.session.Status = domain.SessionAbandoned
	r.phase = PhaseError
	r.failure = domain.ErrSessionClosed
	r.mu.Unlock()

	if err := r.svc.deps.Recorder.MarkAbandoned(ctx, sessionID); err != nil {
		log.Printf("mark abandoned failed for session %s: %v", sessionID, err)
	}
}

func (r *Run) buildRecordLocked(choice string) domain.AnswerRecord {
	question := r.questions[r.index]
	return domain.AnswerRecord{
		SessionID:     r.session.ID,
		CompetitionID: r.competition.ID,
		QuestionID:    question.ID,
		SourceRef:     question.SourceID,
		Selected:      choice,
		Correct:       choice != "" && choice == question.CorrectAnswer,
		Difficulty:    question.Difficulty,
		AnsweredAt:    r.now(),
	}
}

// applyRevealLocked appends the record and flips the question into its
// revealed state. A failed write is logged and counted; prior answers are
// not rolled back and the player is not blocked.
func (r *Run) applyRevealLocked(record domain.AnswerRecord, timedOut bool, writeErr error) Reveal {
	if writeErr != nil {
		log.Printf("answer write failed for session %s question %d: %v", record.SessionID, record.QuestionID, writeErr)
		r.writeFailures++
	}
	question := r.questions[r.index]
	r.answers = append(r.answers, record)
	r.revealed = true
	r.lastReveal = Reveal{
		Index:         r.index,
		Selected:      record.Selected,
		Correct:       record.Correct,
		CorrectAnswer: question.CorrectAnswer,
		Explanation:   question.Explanation,
		TimedOut:      timedOut,
	}
	return r.lastReveal
}

func (r *Run) advanceQuestionLocked() {
	r.index++
	r.selected = ""
	r.revealed = false
	r.questionDeadline = r.now().Add(r.timing.QuestionTime)
}

// finalizeStep recomputes the aggregates from the run's own answer list and
// writes end time, aggregates, and the finalized status in one update. If
// the write fails the session stays open server-side and is excluded from
// ranking; the local scorecard is still shown. Caller must hold the busy
// latch; it is released here.
func (r *Run) finalizeStep(ctx context.Context) Outcome {
	r.mu.Lock()
	correct := 0
	for _, a := range r.answers {
		if a.Correct {
			correct++
		}
	}
	total := len(r.questions)
	result := domain.SessionResult{
		CorrectAnswers:  correct,
		ScorePercentage: float64(correct) / float64(total) * 100,
	}
	sessionID := r.session.ID
	endedAt := r.now()
	r.mu.Unlock()

	err := r.svc.deps.Recorder.Finalize(ctx, sessionID, endedAt, result)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	if err != nil {
		log.Printf("finalize failed for session %s: %v", sessionID, err)
		r.finalizeFailed = true
	} else {
		r.session.Status = domain.SessionFinalized
		r.session.EndedAt = &endedAt
	}
	r.session.CorrectAnswers = result.CorrectAnswers
	r.session.ScorePercentage = result.ScorePercentage
	r.phase = PhaseResults
	results := r.resultsViewLocked()
	return Outcome{Phase: PhaseResults, Results: &results}
}

func (r *Run) questionViewLocked() *QuestionView {
	q := r.questions[r.index]
	return &QuestionView{
		Index:      r.index,
		Total:      len(r.questions),
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Text:       q.Text,
		Choices:    q.Choices,
		Deadline:   r.questionDeadline,
	}
}

func (r *Run) resultsViewLocked() ResultsView {
	return ResultsView{
		CorrectAnswers:  r.session.CorrectAnswers,
		TotalQuestions:  r.session.TotalQuestions,
		ScorePercentage: r.session.ScorePercentage,
		Tier:            TierMessage(r.session.CorrectAnswers),
		Celebrate:       r.session.CorrectAnswers >= 1,
	}
}

// Answers returns a copy of the answers recorded so far.
func (r *Run) Answers() []domain.AnswerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AnswerRecord, len(r.answers))
	copy(out, r.answers)
	return out
}

// Session returns a snapshot of the run's session record.
func (r *Run) Session() domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}
