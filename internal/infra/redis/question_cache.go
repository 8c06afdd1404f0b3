package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"kickexpert-competition-service/internal/domain"
)

// QuestionLoader fetches a competition's merged question set from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, competitionID string) (domain.QuestionSet, error)
}

// QuestionCache keeps each competition's question set in Redis and falls
// back to a loader on cache miss.
// Sets are stored as: SET competition:{id}:questions {json} EX ttl
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (c *QuestionCache) GetQuestionSet(ctx context.Context, competitionID string) (domain.QuestionSet, error) {
	key := c.questionsKey(competitionID)

	if set, ok := c.cached(ctx, key, competitionID); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := c.cached(ctx, key, competitionID); ok {
			return set, nil
		}

		set, err := c.loader.LoadQuestions(ctx, competitionID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		if data, err := json.Marshal(set.Questions); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *QuestionCache) cached(ctx context.Context, key, competitionID string) (domain.QuestionSet, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.QuestionSet{}, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return domain.QuestionSet{}, false
	}
	return domain.QuestionSet{CompetitionID: competitionID, Questions: questions}, true
}

func (c *QuestionCache) questionsKey(competitionID string) string {
	return "competition:" + competitionID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
