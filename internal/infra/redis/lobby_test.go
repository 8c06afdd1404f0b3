package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLobbyAnnounceAndPoll(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lobby := NewLobby(client, time.Minute)

	ctx := context.Background()
	if err := lobby.Announce(ctx, "comp-1", "u1"); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := lobby.Announce(ctx, "comp-1", "u2"); err != nil {
		t.Fatalf("announce: %v", err)
	}
	// Re-announcing the same user must not duplicate membership.
	if err := lobby.Announce(ctx, "comp-1", "u1"); err != nil {
		t.Fatalf("announce: %v", err)
	}

	users, err := lobby.Registrants(ctx, "comp-1")
	if err != nil {
		t.Fatalf("registrants: %v", err)
	}
	sort.Strings(users)
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("expected u1 and u2, got %v", users)
	}

	mr.FastForward(2 * time.Minute)
	users, err = lobby.Registrants(ctx, "comp-1")
	if err != nil {
		t.Fatalf("registrants after expiry: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected lobby to expire, got %v", users)
	}
}
