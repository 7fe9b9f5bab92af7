package storage

import (
	"context"
	"fmt"
	"log"

	"EduQuest/server/internal/models"
)

// Store is the persistence facade: writes go to both Redis and MySQL when
// available, reads try Redis first and fall back to MySQL. Either backend
// may be nil.
type Store struct {
	redis *RedisStore
	mysql *MySQLStore
}

func NewStore(redis *RedisStore, mysql *MySQLStore) *Store {
	return &Store{redis: redis, mysql: mysql}
}

func (s *Store) SaveRequirement(ctx context.Context, id, ownerID string, record models.RequirementRecord) error {
	var firstErr error
	saved := false
	if s.redis != nil {
		if err := s.redis.SaveRequirement(ctx, id, ownerID, record); err != nil {
			log.Printf("[Store] redis requirement save failed: %v", err)
			firstErr = err
		} else {
			saved = true
		}
	}
	if s.mysql != nil {
		if err := s.mysql.SaveRequirement(ctx, id, ownerID, record); err != nil {
			log.Printf("[Store] mysql requirement save failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			saved = true
		}
	}
	if saved {
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("no storage backend available")
}

func (s *Store) GetRequirement(ctx context.Context, id string) (*models.RequirementRecord, error) {
	if s.redis != nil {
		if record, err := s.redis.GetRequirement(ctx, id); err == nil {
			return record, nil
		}
	}
	if s.mysql != nil {
		return s.mysql.GetRequirement(ctx, id)
	}
	return nil, fmt.Errorf("requirement not found: %s", id)
}

func (s *Store) GetLatestRequirement(ctx context.Context, ownerID string) (*models.RequirementRecord, error) {
	if s.redis != nil {
		if record, err := s.redis.GetLatestRequirement(ctx, ownerID); err == nil {
			return record, nil
		}
	}
	if s.mysql != nil {
		return s.mysql.GetLatestRequirement(ctx, ownerID)
	}
	return nil, fmt.Errorf("no latest requirement for %s", ownerID)
}

func (s *Store) SaveStory(ctx context.Context, story models.StoryResult) error {
	var firstErr error
	saved := false
	if s.redis != nil {
		if err := s.redis.SaveStory(ctx, story); err != nil {
			log.Printf("[Store] redis story save failed: %v", err)
			firstErr = err
		} else {
			saved = true
		}
	}
	if s.mysql != nil {
		if err := s.mysql.SaveStory(ctx, story); err != nil {
			log.Printf("[Store] mysql story save failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			saved = true
		}
	}
	if saved {
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("no storage backend available")
}

func (s *Store) GetStory(ctx context.Context, storyID string) (*models.StoryResult, error) {
	if s.redis != nil {
		if story, err := s.redis.GetStory(ctx, storyID); err == nil {
			return story, nil
		}
	}
	if s.mysql != nil {
		return s.mysql.GetStory(ctx, storyID)
	}
	return nil, fmt.Errorf("story not found: %s", storyID)
}
