package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"kickexpert-competition-service/internal/app"
	"kickexpert-competition-service/internal/config"
	"kickexpert-competition-service/internal/domain"
	"kickexpert-competition-service/internal/infra/memory"
	pg "kickexpert-competition-service/internal/infra/postgres"
	rediscache "kickexpert-competition-service/internal/infra/redis"
	transport "kickexpert-competition-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	lobbyTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	questionsTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var deps app.Deps
	if pool != nil {
		var questions app.QuestionRepository
		loader := pg.NewQuestionLoader(pool)
		if redisClient != nil {
			questions = rediscache.NewQuestionCache(redisClient, loader, questionsTTL)
		} else {
			questions = memory.NewQuestionRepository(loader, questionsTTL)
		}
		deps = app.Deps{
			Competitions:  pg.NewCompetitionRepository(pool),
			Registrations: pg.NewRegistrationRepository(pool),
			Questions:     questions,
			Recorder:      pg.NewSessionRecorder(pool),
			Standings:     pg.NewStandingsSource(pool),
			Profiles:      pg.NewProfileDirectory(pool),
		}
	} else {
		// Demo mode: no Postgres configured, run against seeded in-memory data.
		store := seedDemoStore()
		deps = app.Deps{
			Competitions:  store,
			Registrations: store,
			Questions:     memory.NewQuestionRepository(memory.NewStaticQuestionLoader(demoQuestions()), questionsTTL),
			Recorder:      store,
			Standings:     store,
			Profiles:      store,
			Lobby:         store,
		}
		log.Println("postgres url not configured, serving seeded demo data")
	}
	if redisClient != nil {
		deps.Lobby = rediscache.NewLobby(redisClient, lobbyTTL)
	}

	timing := app.Timing{
		LobbyMax:     config.TTLDuration(cfg.Competition.LobbyMax, 0),
		QuestionTime: config.TTLDuration(cfg.Competition.QuestionTime, 0),
	}
	service := app.NewService(deps, timing)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting competition service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoStore provides a minimal competition so the service is usable
// without a database; swap in Postgres for production.
func seedDemoStore() *memory.Store {
	store := memory.NewStore()
	now := time.Now()
	store.AddCompetition(domain.Competition{
		ID:         "starter-league",
		Name:       "Starter League",
		StartsAt:   now.Add(30 * time.Second),
		EndsAt:     now.Add(24 * time.Hour),
		Status:     domain.CompetitionLive,
		EntryCost:  10,
		PrizeTable: map[int]int{1: 100, 2: 50, 3: 25},
	})
	for _, user := range []struct{ id, name string }{
		{"demo-1", "Alex"},
		{"demo-2", "Jordan"},
		{"demo-3", "Sam"},
	} {
		store.AddRegistration(domain.Registration{
			CompetitionID: "starter-league",
			UserID:        user.id,
			Status:        domain.RegistrationConfirmed,
			PaidCredits:   10,
			CreatedAt:     now,
		})
		store.AddProfile(user.id, user.name)
	}
	return store
}

func demoQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"starter-league": {
			{
				ID:            1,
				Category:      "Rules",
				Difficulty:    domain.Easy,
				Text:          "How many players does each team field at kickoff?",
				Choices:       []string{"9", "10", "11", "12"},
				CorrectAnswer: "11",
				Explanation:   "Eleven per side, including the goalkeeper.",
			},
			{
				ID:            2,
				Category:      "History",
				Difficulty:    domain.Medium,
				Text:          "Which country hosted the first World Cup in 1930?",
				Choices:       []string{"Brazil", "Uruguay", "Italy", "France"},
				CorrectAnswer: "Uruguay",
			},
			{
				ID:            3,
				Category:      "Clubs",
				Difficulty:    domain.Hard,
				Text:          "Which club has won the most European Cup / Champions League titles?",
				Choices:       []string{"AC Milan", "Bayern Munich", "Liverpool", "Real Madrid"},
				CorrectAnswer: "Real Madrid",
			},
		},
	}
}
