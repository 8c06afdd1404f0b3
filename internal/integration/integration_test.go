package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"kickexpert-competition-service/internal/app"
	"kickexpert-competition-service/internal/domain"
	pg "kickexpert-competition-service/internal/infra/postgres"
	pgmigrations "kickexpert-competition-service/internal/infra/postgres/migrations"
	infraredis "kickexpert-competition-service/internal/infra/redis"
)

func TestCompetitionSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedCompetition(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	service := app.NewService(app.Deps{
		Competitions:  pg.NewCompetitionRepository(pool),
		Registrations: pg.NewRegistrationRepository(pool),
		Questions:     infraredis.NewQuestionCache(redisClient, pg.NewQuestionLoader(pool), 5*time.Minute),
		Recorder:      pg.NewSessionRecorder(pool),
		Standings:     pg.NewStandingsSource(pool),
		Profiles:      pg.NewProfileDirectory(pool),
		Lobby:         infraredis.NewLobby(redisClient, 5*time.Minute),
	}, app.Timing{LobbyMax: time.Minute, QuestionTime: 30 * time.Second})

	// Alice answers everything right, Bob only the first question.
	playSession(t, ctx, service, "u1", 3)
	playSession(t, ctx, service, "u2", 1)

	// The stranger never registered, so the gate rejects before any row exists.
	if _, err := service.StartRun(ctx, "comp-1", "stranger"); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("expected unregistered user rejected, got %v", err)
	}

	board, err := service.Standings(ctx, "comp-1", "u2")
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Fatalf("expected two finalized entries, got %+v", board.Entries)
	}
	first, second := board.Entries[0], board.Entries[1]
	if first.UserID != "u1" || first.DisplayName != "Alice" || first.Rank != 1 || first.Trophy != "gold" || first.Prize != 100 {
		t.Fatalf("unexpected leading entry: %+v", first)
	}
	if second.UserID != "u2" || second.DisplayName != "Bob" || second.Rank != 2 || second.Trophy != "silver" || second.Prize != 50 {
		t.Fatalf("unexpected runner-up entry: %+v", second)
	}
	if board.Me == nil || board.Me.UserID != "u2" || board.Me.Rank != 2 {
		t.Fatalf("expected own row at rank 2, got %+v", board.Me)
	}

	var answerCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM answers WHERE competition_id='comp-1'`).Scan(&answerCount); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if answerCount != 6 {
		t.Fatalf("expected one answer row per question per player, got %d", answerCount)
	}

	// The unique session constraint blocks a replay for the same player.
	rerun, err := service.StartRun(ctx, "comp-1", "u1")
	if err != nil {
		t.Fatalf("second start run: %v", err)
	}
	if _, err := rerun.BeginQuiz(ctx); err == nil {
		t.Fatalf("expected duplicate session rejected")
	}
}

// playSession drives one full run: answer the first correctCount questions
// right, miss the rest, and land on finalized results.
func playSession(t *testing.T, ctx context.Context, service *app.Service, userID string, correctCount int) {
	t.Helper()
	run, err := service.StartRun(ctx, "comp-1", userID)
	if err != nil {
		t.Fatalf("start run %s: %v", userID, err)
	}
	out, err := run.BeginQuiz(ctx)
	if err != nil {
		t.Fatalf("begin quiz %s: %v", userID, err)
	}
	questions := seedQuestions()
	for i := range questions {
		choice := questions[i].CorrectAnswer
		if i >= correctCount {
			choice = questions[i].Choices[0] // first choice is never the right one here
		}
		if err := run.Select(choice); err != nil {
			t.Fatalf("select q%d for %s: %v", i, userID, err)
		}
		if _, err := run.Submit(ctx); err != nil {
			t.Fatalf("submit q%d for %s: %v", i, userID, err)
		}
		out, err = run.Advance(ctx)
		if err != nil {
			t.Fatalf("advance q%d for %s: %v", i, userID, err)
		}
	}
	if out.Results == nil || out.Results.CorrectAnswers != correctCount {
		t.Fatalf("expected %d correct for %s, got %+v", correctCount, userID, out.Results)
	}
	if session := run.Session(); session.Status != domain.SessionFinalized {
		t.Fatalf("expected finalized session for %s, got %+v", userID, session)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "competition", "POSTGRES_PASSWORD": "competitionpass", "POSTGRES_DB": "competitiondb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://competition:competitionpass@%s:%s/competitiondb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedCompetition(t *testing.T, ctx context.Context, dsn string) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO competitions (id, name, starts_at, ends_at, status, entry_cost, prize_table)
		 VALUES ('comp-1', 'Starter League', now() - interval '1 minute', now() + interval '1 hour', 'live', 10, '{"1":100,"2":50,"3":25}'::jsonb)`); err != nil {
		t.Fatalf("insert competition: %v", err)
	}
	for _, row := range []struct{ userID, name string }{{"u1", "Alice"}, {"u2", "Bob"}} {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO registrations (competition_id, user_id, status, paid_credits) VALUES ('comp-1', ?, 'confirmed', 10)`,
			row.userID); err != nil {
			t.Fatalf("insert registration %s: %v", row.userID, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO profiles (user_id, display_name) VALUES (?, ?)`,
			row.userID, row.name); err != nil {
			t.Fatalf("insert profile %s: %v", row.userID, err)
		}
	}
	for i, q := range seedQuestions() {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (competition_id, category, difficulty, question, choices, correct_answer, explanation, position)
			 VALUES ('comp-1', ?, ?, ?, ?::jsonb, ?, ?, ?)`,
			q.Category, string(q.Difficulty), q.Text, choicesJSON(q.Choices), q.CorrectAnswer, q.Explanation, i); err != nil {
			t.Fatalf("insert question %d: %v", i, err)
		}
	}
}

func seedQuestions() []domain.Question {
	return []domain.Question{
		{
			Category:      "Rules",
			Difficulty:    domain.Easy,
			Text:          "How many players does each team field at kickoff?",
			Choices:       []string{"9", "10", "11", "12"},
			CorrectAnswer: "11",
			Explanation:   "Eleven per side, including the goalkeeper.",
		},
		{
			Category:      "History",
			Difficulty:    domain.Medium,
			Text:          "Which country hosted the first World Cup in 1930?",
			Choices:       []string{"Brazil", "Uruguay", "Italy", "France"},
			CorrectAnswer: "Uruguay",
		},
		{
			Category:      "Clubs",
			Difficulty:    domain.Hard,
			Text:          "Which club has won the most European Cup titles?",
			Choices:       []string{"AC Milan", "Bayern Munich", "Liverpool", "Real Madrid"},
			CorrectAnswer: "Real Madrid",
		},
	}
}

func choicesJSON(choices []string) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = fmt.Sprintf("%q", c)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
