package models

import "time"

// PhaseStatus tracks one generation sub-phase of a level.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// Storyboard is the structured scene description extracted for one level.
type Storyboard struct {
	LevelName        string   `json:"level_name"`
	SceneDescription string   `json:"scene_description"`
	VisualStyle      string   `json:"visual_style"`
	Characters       []string `json:"characters"`
	Script           string   `json:"script"`
	Composition      string   `json:"composition,omitempty"`
	Technical        string   `json:"technical,omitempty"`
	KnowledgePoint   string   `json:"knowledge_point,omitempty"`
	Branching        bool     `json:"branching,omitempty"`
}

// LevelRecord is the outcome of one level's generation pipeline. Exactly one
// worker writes each record; sub-phase failures degrade without failing the
// level as long as the storyboard succeeded.
type LevelRecord struct {
	LevelIndex int    `json:"level_index"`
	LevelName  string `json:"level_name"`

	StoryboardStatus PhaseStatus `json:"storyboard_status"`
	Storyboard       *Storyboard `json:"storyboard,omitempty"`
	StoryboardError  string      `json:"storyboard_error,omitempty"`

	ImageStatus PhaseStatus `json:"image_status"`
	ImageRef    string      `json:"image_ref,omitempty"`
	ImageError  string      `json:"image_error,omitempty"`

	DialogueStatus PhaseStatus `json:"dialogue_status"`
	DialogueText   string      `json:"dialogue_text,omitempty"`
	DialogueError  string      `json:"dialogue_error,omitempty"`
}

// Succeeded reports the level's overall status: the storyboard is the only
// mandatory phase.
func (l LevelRecord) Succeeded() bool {
	return l.StoryboardStatus == PhaseCompleted
}

// FrameworkIteration tracks the refinement loop over one narrative framework.
type FrameworkIteration struct {
	Text       string           `json:"text"`
	Review     *FrameworkReview `json:"review,omitempty"`
	Iterations int              `json:"iterations"`
	ForcedPass bool             `json:"forced_pass"`
	Approved   bool             `json:"approved"`
}

// StoryResult is the persisted shape of a completed run.
type StoryResult struct {
	StoryID       string            `json:"story_id"`
	RequirementID string            `json:"requirement_id"`
	Requirement   RequirementRecord `json:"requirement"`
	Framework     string            `json:"framework"`
	Levels        []LevelRecord     `json:"levels"`
	CreatedAt     time.Time         `json:"created_at"`
}
