package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lobby tracks which registrants are waiting in a competition lobby.
// Membership is a Redis set with a TTL so stale lobbies clear themselves:
//
//	SADD competition:{id}:lobby {userID}
type Lobby struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLobby(client *redis.Client, ttl time.Duration) *Lobby {
	return &Lobby{client: client, ttl: ttl}
}

func (l *Lobby) Announce(ctx context.Context, competitionID, userID string) error {
	key := l.key(competitionID)
	if err := l.client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	if l.ttl > 0 {
		return l.client.Expire(ctx, key, l.ttl).Err()
	}
	return nil
}

func (l *Lobby) Registrants(ctx context.Context, competitionID string) ([]string, error) {
	return l.client.SMembers(ctx, l.key(competitionID)).Result()
}

func (l *Lobby) key(competitionID string) string {
	return "competition:" + competitionID + ":lobby"
}
