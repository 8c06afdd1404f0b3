package domain

import "errors"

var (
	// ErrCompetitionNotFound indicates the competition does not exist.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrNotRegistered is returned when no confirmed registration exists for the (competition, user) pair.
	ErrNotRegistered = errors.New("not registered or registration not confirmed for this competition")
	// ErrNoQuestions is the fatal configuration error for a competition with an empty question set.
	ErrNoQuestions = errors.New("no questions are configured for this competition")
	// ErrSessionNotFound indicates the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists rejects a second session for the same (competition, user) pair.
	ErrSessionExists = errors.New("a session already exists for this competition and user")
	// ErrSessionClosed is returned when writing to a finalized or abandoned session.
	ErrSessionClosed = errors.New("session already finalized or abandoned")
	// ErrQuestionClosed is returned for input against a question whose result is already revealed.
	ErrQuestionClosed = errors.New("question already resolved")
	// ErrNoSelection means submit was called before any choice was made.
	ErrNoSelection = errors.New("no choice selected")
	// ErrInvalidChoice means the selected choice is not one of the question's options.
	ErrInvalidChoice = errors.New("choice is not offered by this question")
	// ErrAnswerPending rejects re-entrant input while an answer write is in flight.
	ErrAnswerPending = errors.New("answer submission already in flight")
	// ErrNotRevealed means advance was requested before the question resolved.
	ErrNotRevealed = errors.New("question result not revealed yet")
	// ErrLobbyActive means the quiz phase was entered before the countdown elapsed.
	ErrLobbyActive = errors.New("lobby countdown still running")
	// ErrWrongPhase is returned for input that does not apply to the current phase.
	ErrWrongPhase = errors.New("action not valid in current phase")
)
