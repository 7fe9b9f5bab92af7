package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/models"
)

const (
	requirementKeyPrefix = "eduagent:requirements:"
	storyKeyPrefix       = "eduagent:stories:"
	storyIndexPrefix     = "eduagent:stories:index:"
	latestKeyPrefix      = "eduagent:latest:"

	recordTTL = 30 * 24 * time.Hour
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// SaveRequirement stores a requirement snapshot and tracks the owner's
// latest requirement id.
func (s *RedisStore) SaveRequirement(ctx context.Context, id, ownerID string, record models.RequirementRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal requirement: %w", err)
	}

	if err := s.client.Set(ctx, requirementKeyPrefix+id, data, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to store requirement: %w", err)
	}
	if ownerID != "" {
		if err := s.client.Set(ctx, latestKeyPrefix+ownerID, id, recordTTL).Err(); err != nil {
			return fmt.Errorf("failed to update latest pointer: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) GetRequirement(ctx context.Context, id string) (*models.RequirementRecord, error) {
	data, err := s.client.Get(ctx, requirementKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get requirement %s: %w", id, err)
	}

	var record models.RequirementRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirement %s: %w", id, err)
	}
	return &record, nil
}

func (s *RedisStore) GetLatestRequirement(ctx context.Context, ownerID string) (*models.RequirementRecord, error) {
	id, err := s.client.Get(ctx, latestKeyPrefix+ownerID).Result()
	if err != nil {
		return nil, fmt.Errorf("no latest requirement for %s: %w", ownerID, err)
	}
	return s.GetRequirement(ctx, id)
}

// SaveStory stores a completed run and appends it to the date-bucketed
// story index.
func (s *RedisStore) SaveStory(ctx context.Context, story models.StoryResult) error {
	data, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}

	if err := s.client.Set(ctx, storyKeyPrefix+story.StoryID, data, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to store story: %w", err)
	}

	indexKey := storyIndexPrefix + time.Now().Format("20060102")
	if err := s.client.LPush(ctx, indexKey, story.StoryID).Err(); err != nil {
		return fmt.Errorf("failed to index story: %w", err)
	}
	if err := s.client.Expire(ctx, indexKey, recordTTL).Err(); err != nil {
		// Non-critical, the index just lives longer than intended.
		log.Printf("[RedisStore] Warning: failed to set index TTL: %v", err)
	}
	return nil
}

func (s *RedisStore) GetStory(ctx context.Context, storyID string) (*models.StoryResult, error) {
	data, err := s.client.Get(ctx, storyKeyPrefix+storyID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get story %s: %w", storyID, err)
	}

	var story models.StoryResult
	if err := json.Unmarshal([]byte(data), &story); err != nil {
		return nil, fmt.Errorf("failed to unmarshal story %s: %w", storyID, err)
	}
	return &story, nil
}

// ListStoriesByDate returns the story ids generated on a given day, most
// recent first.
func (s *RedisStore) ListStoriesByDate(ctx context.Context, date string, limit int64) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.client.LRange(ctx, storyIndexPrefix+date, 0, limit-1).Result()
}
