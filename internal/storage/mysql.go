package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/models"
)

// RequirementRow is the durable form of a requirement snapshot.
type RequirementRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	OwnerID   string `gorm:"index;size:64"`
	Data      string `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoryRow is the durable form of a completed run.
type StoryRow struct {
	StoryID       string `gorm:"primaryKey;size:64"`
	RequirementID string `gorm:"index;size:64"`
	Payload       string `gorm:"type:longtext"`
	CreatedAt     time.Time
}

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&RequirementRow{}, &StoryRow{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// Transaction helper
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

func (s *MySQLStore) SaveRequirement(ctx context.Context, id, ownerID string, record models.RequirementRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal requirement: %w", err)
	}
	row := RequirementRow{ID: id, OwnerID: ownerID, Data: string(data)}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *MySQLStore) GetRequirement(ctx context.Context, id string) (*models.RequirementRecord, error) {
	var row RequirementRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	var record models.RequirementRecord
	if err := json.Unmarshal([]byte(row.Data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirement %s: %w", id, err)
	}
	return &record, nil
}

func (s *MySQLStore) GetLatestRequirement(ctx context.Context, ownerID string) (*models.RequirementRecord, error) {
	var row RequirementRow
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.First(&row).Error; err != nil {
		return nil, err
	}
	var record models.RequirementRecord
	if err := json.Unmarshal([]byte(row.Data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirement %s: %w", row.ID, err)
	}
	return &record, nil
}

func (s *MySQLStore) SaveStory(ctx context.Context, story models.StoryResult) error {
	payload, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}
	row := StoryRow{
		StoryID:       story.StoryID,
		RequirementID: story.RequirementID,
		Payload:       string(payload),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *MySQLStore) GetStory(ctx context.Context, storyID string) (*models.StoryResult, error) {
	var row StoryRow
	if err := s.db.WithContext(ctx).First(&row, "story_id = ?", storyID).Error; err != nil {
		return nil, err
	}
	var story models.StoryResult
	if err := json.Unmarshal([]byte(row.Payload), &story); err != nil {
		return nil, fmt.Errorf("failed to unmarshal story %s: %w", storyID, err)
	}
	return &story, nil
}
