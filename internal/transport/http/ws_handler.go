package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kickexpert-competition-service/internal/app"
)

type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Choice string `json:"choice"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinedPayload struct {
	CompetitionID    string    `json:"competitionId"`
	CompetitionName  string    `json:"competitionName"`
	Phase            app.Phase `json:"phase"`
	CountdownSeconds int       `json:"countdownSeconds"`
	Registrants      []string  `json:"registrants,omitempty"`
}

type lobbyPayload struct {
	Registrants []string `json:"registrants"`
}

// ServeWS upgrades HTTP requests to websockets and drives one session run
// per connection: the lobby countdown and question timers run server-side,
// inbound select/submit/advance messages come from the player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	userID := r.URL.Query().Get("userId")
	if competitionID == "" || userID == "" {
		http.Error(w, "missing competitionId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	run, err := h.service.StartRun(r.Context(), competitionID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	// Disconnecting mid-quiz abandons the session; a no-op otherwise.
	defer run.Abandon(context.Background())

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timersDone := make(chan struct{})
	rearm := make(chan struct{}, 1)

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}
	pushOutcome := func(out app.Outcome) {
		if out.Reveal != nil {
			push(outboundMessage[any]{Type: "reveal", Payload: out.Reveal})
		}
		if out.Question != nil {
			push(outboundMessage[any]{Type: "question", Payload: out.Question})
		}
		if out.Results != nil {
			push(outboundMessage[any]{Type: "results", Payload: out.Results})
		}
	}
	poke := func() {
		select {
		case rearm <- struct{}{}:
		default:
		}
	}

	registrants, err := run.Registrants(r.Context())
	if err != nil {
		log.Printf("lobby poll failed: %v", err)
	}
	push(outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		CompetitionID:    competitionID,
		CompetitionName:  run.Competition().Name,
		Phase:            run.Phase(),
		CountdownSeconds: int(run.LobbyRemaining() / time.Second),
		Registrants:      registrants,
	}})

	// Timer loop: arms whichever deadline the run reports next (lobby, then
	// each unresolved question) and fires the matching transition. Stale
	// fires are no-ops inside the run.
	go func() {
		defer close(timersDone)
		for {
			phase, index, deadline, ok := run.Deadline()
			switch phase {
			case app.PhaseResults, app.PhaseLeaderboard, app.PhaseError:
				return
			}
			var timerC <-chan time.Time
			var timer *time.Timer
			if ok {
				timer = time.NewTimer(time.Until(deadline))
				timerC = timer.C
			}
			select {
			case <-timerC:
				switch phase {
				case app.PhaseWaiting:
					out, err := run.BeginQuiz(r.Context())
					if err == nil {
						pushOutcome(out)
					} else if run.Phase() == app.PhaseError {
						push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
						return
					}
				case app.PhaseQuiz:
					if out, fired := run.ExpireQuestion(r.Context(), index); fired {
						pushOutcome(out)
					}
				}
			case <-rearm:
			case <-closeSignals:
			}
			if timer != nil {
				timer.Stop()
			}
			select {
			case <-closeSignals:
				return
			default:
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
				continue
			}
			if err := run.Select(payload.Choice); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "submit":
			out, err := run.Submit(r.Context())
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			pushOutcome(out)
			poke()
		case "advance":
			out, err := run.Advance(r.Context())
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			pushOutcome(out)
			poke()
		case "lobby":
			users, err := run.Registrants(r.Context())
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			push(outboundMessage[any]{Type: "lobby", Payload: lobbyPayload{Registrants: users}})
		case "leaderboard":
			board, err := run.Leaderboard(r.Context())
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			push(outboundMessage[any]{Type: "leaderboard", Payload: board})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-timersDone
	close(send)
	<-writerDone
}
