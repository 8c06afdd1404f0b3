package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kickexpert-competition-service/internal/app"
	"kickexpert-competition-service/internal/domain"
	"kickexpert-competition-service/internal/infra/memory"
)

func TestWebSocketSessionFlow(t *testing.T) {
	service, _ := newTestService(t, app.Timing{LobbyMax: time.Minute, QuestionTime: 5 * time.Second})
	server := newTestServer(service)
	defer server.Close()

	conn := dial(t, server, "comp-1", "u1")
	defer conn.Close()

	readNext(conn, t, "joined")
	// The competition already started, so the quiz begins at once.
	readNext(conn, t, "question")

	// Answer the first question correctly.
	writeMsg(t, conn, "select", map[string]any{"choice": "11"})
	writeMsg(t, conn, "submit", nil)
	_, payload := readNext(conn, t, "reveal")
	if payload["correct"] != true {
		t.Fatalf("expected correct reveal, got %v", payload)
	}

	writeMsg(t, conn, "advance", nil)
	readNext(conn, t, "question")

	// Miss the second one.
	writeMsg(t, conn, "select", map[string]any{"choice": "Brazil"})
	writeMsg(t, conn, "submit", nil)
	_, payload = readNext(conn, t, "reveal")
	if payload["correct"] != false {
		t.Fatalf("expected wrong reveal, got %v", payload)
	}

	writeMsg(t, conn, "advance", nil)
	_, payload = readNext(conn, t, "results")
	if payload["correctAnswers"] != float64(1) || payload["scorePercentage"] != float64(50) {
		t.Fatalf("expected 1 correct at 50%%, got %v", payload)
	}

	writeMsg(t, conn, "leaderboard", nil)
	_, payload = readNext(conn, t, "leaderboard")
	entries, ok := payload["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", payload)
	}
	me, ok := payload["me"].(map[string]any)
	if !ok || me["userId"] != "u1" || me["rank"] != float64(1) {
		t.Fatalf("expected own row at rank 1, got %v", payload)
	}
}

func TestWebSocketQuestionTimerAutoAdvances(t *testing.T) {
	service, store := newTestService(t, app.Timing{LobbyMax: time.Minute, QuestionTime: 150 * time.Millisecond})
	server := newTestServer(service)
	defer server.Close()

	conn := dial(t, server, "comp-1", "u1")
	defer conn.Close()

	readNext(conn, t, "joined")
	readNext(conn, t, "question")

	// Let both timers expire without input: each question reveals a skip,
	// then the flow lands on results by itself.
	_, payload := readNext(conn, t, "reveal")
	if payload["timedOut"] != true {
		t.Fatalf("expected timed-out reveal, got %v", payload)
	}
	readNext(conn, t, "question")
	readNext(conn, t, "reveal")
	_, payload = readNext(conn, t, "results")
	if payload["correctAnswers"] != float64(0) {
		t.Fatalf("expected zero score, got %v", payload)
	}
	if payload["tier"] != "Keep Practicing!" {
		t.Fatalf("expected Keep Practicing! tier, got %v", payload)
	}

	if n := store.SessionCount("comp-1"); n != 1 {
		t.Fatalf("expected one session row, got %d", n)
	}
}

func TestWebSocketRejectsUnregisteredUser(t *testing.T) {
	service, store := newTestService(t, app.Timing{})
	server := newTestServer(service)
	defer server.Close()

	conn := dial(t, server, "comp-1", "stranger")
	defer conn.Close()

	typ, payload := readNext(conn, t, "error")
	if typ != "error" {
		t.Fatalf("expected error frame, got %s", typ)
	}
	if payload["message"] != domain.ErrNotRegistered.Error() {
		t.Fatalf("unexpected message: %v", payload)
	}
	if n := store.SessionCount("comp-1"); n != 0 {
		t.Fatalf("expected no session rows, got %d", n)
	}
}

func newTestService(t *testing.T, timing app.Timing) (*app.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddCompetition(domain.Competition{
		ID:       "comp-1",
		Name:     "Starter League",
		StartsAt: time.Now().Add(-time.Minute),
		EndsAt:   time.Now().Add(time.Hour),
		Status:   domain.CompetitionLive,
	})
	store.AddRegistration(domain.Registration{
		CompetitionID: "comp-1",
		UserID:        "u1",
		Status:        domain.RegistrationConfirmed,
		PaidCredits:   10,
	})
	store.AddProfile("u1", "Alice")

	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"comp-1": sampleQuestions(),
	}), time.Minute)

	service := app.NewService(app.Deps{
		Competitions:  store,
		Registrations: store,
		Questions:     questions,
		Recorder:      store,
		Standings:     store,
		Profiles:      store,
		Lobby:         store,
	}, timing)
	return service, store
}

func newTestServer(service *app.Service) *httptest.Server {
	wsHandler := NewWSHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, competitionID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?competitionId=" + competitionID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msgType string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (payload %v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            1,
			Category:      "Rules",
			Difficulty:    domain.Easy,
			Text:          "How many players are on the pitch per side?",
			Choices:       []string{"9", "10", "11", "12"},
			CorrectAnswer: "11",
			Explanation:   "Eleven per side, including the goalkeeper.",
		},
		{
			ID:            2,
			Category:      "History",
			Difficulty:    domain.Medium,
			Text:          "Which country hosted the first World Cup?",
			Choices:       []string{"Brazil", "Uruguay", "Italy", "France"},
			CorrectAnswer: "Uruguay",
		},
	}
}
