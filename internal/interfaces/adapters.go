package interfaces

import (
	"context"
	"time"

	"EduQuest/server/internal/models"
)

// ModelCaller is the transport contract for text completions. No retry, no
// parsing; the orchestration core supplies those itself.
type ModelCaller interface {
	Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// ImagePrompt carries the storyboard fields an image is rendered from.
type ImagePrompt struct {
	Scene       string `json:"scene"`
	Style       string `json:"style"`
	Characters  string `json:"characters"`
	Composition string `json:"composition"`
	Technical   string `json:"technical"`
}

// ImageGenerator is the transport contract for illustration rendering.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt ImagePrompt, timeout time.Duration) (string, error)
}

// RequirementStore persists requirement snapshots. All operations are
// best-effort side effects; failures never roll back workflow progress.
type RequirementStore interface {
	SaveRequirement(ctx context.Context, id, ownerID string, record models.RequirementRecord) error
	GetRequirement(ctx context.Context, id string) (*models.RequirementRecord, error)
	GetLatestRequirement(ctx context.Context, ownerID string) (*models.RequirementRecord, error)
}

// StoryStore persists completed runs.
type StoryStore interface {
	SaveStory(ctx context.Context, story models.StoryResult) error
	GetStory(ctx context.Context, storyID string) (*models.StoryResult, error)
}

// ProgressEvent is one level-generation status update pushed to observers.
type ProgressEvent struct {
	SessionID  string `json:"session_id"`
	LevelIndex int    `json:"level_index"`
	Phase      string `json:"phase"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// ProgressNotifier receives generation progress. Implementations must not
// block the generation pipeline.
type ProgressNotifier interface {
	Notify(event ProgressEvent)
}
