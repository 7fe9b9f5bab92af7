package models

import (
	"fmt"
	"time"
)

// WorkflowStage enumerates the pipeline's directed graph nodes.
type WorkflowStage string

const (
	WorkflowCollecting        WorkflowStage = "collecting"
	WorkflowSufficiencyReview WorkflowStage = "sufficiency_review"
	WorkflowFitnessReview     WorkflowStage = "fitness_review"
	WorkflowFrameworkGen      WorkflowStage = "framework_generation"
	WorkflowFrameworkReview   WorkflowStage = "framework_review"
	WorkflowFrameworkImprove  WorkflowStage = "framework_improve"
	WorkflowLevelGeneration   WorkflowStage = "level_generation"
	WorkflowDone              WorkflowStage = "done"
)

// workflowTransitions is the closed transition table. Self-loops cover
// stages that suspend awaiting the next user turn.
var workflowTransitions = map[WorkflowStage][]WorkflowStage{
	WorkflowCollecting:        {WorkflowCollecting, WorkflowSufficiencyReview},
	WorkflowSufficiencyReview: {WorkflowCollecting, WorkflowFitnessReview},
	WorkflowFitnessReview:     {WorkflowCollecting, WorkflowFrameworkGen},
	WorkflowFrameworkGen:      {WorkflowFrameworkReview},
	WorkflowFrameworkReview:   {WorkflowFrameworkImprove, WorkflowLevelGeneration},
	WorkflowFrameworkImprove:  {WorkflowFrameworkReview},
	WorkflowLevelGeneration:   {WorkflowDone},
	WorkflowDone:              {},
}

// CanTransition reports whether the edge from→to exists in the graph.
func CanTransition(from, to WorkflowStage) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Message is one turn of the running dialogue log.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// WorkflowState is the aggregate root for one session. The workflow driver
// owns and mutates it; components receive it for the duration of one
// invocation only.
type WorkflowState struct {
	SessionID     string                 `json:"session_id"`
	RequirementID string                 `json:"requirement_id"`
	Stage         WorkflowStage          `json:"stage"`
	Requirement   RequirementRecord      `json:"requirement"`
	Messages      []Message              `json:"messages"`
	Sufficiency   *SufficiencyAssessment `json:"sufficiency,omitempty"`
	Fitness       *FitnessAssessment     `json:"fitness,omitempty"`
	Framework     FrameworkIteration     `json:"framework"`
	Levels        []LevelRecord          `json:"levels,omitempty"`
	StoryID       string                 `json:"story_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewWorkflowState creates an empty session state in the collecting stage.
func NewWorkflowState(sessionID string) *WorkflowState {
	now := time.Now()
	return &WorkflowState{
		SessionID: sessionID,
		Stage:     WorkflowCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the state to the next stage, enforcing the transition table.
func (s *WorkflowState) Advance(to WorkflowStage) error {
	if !CanTransition(s.Stage, to) {
		return fmt.Errorf("invalid workflow transition %s -> %s", s.Stage, to)
	}
	s.Stage = to
	s.UpdatedAt = time.Now()
	return nil
}

// AppendMessage records one dialogue turn.
func (s *WorkflowState) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Time: time.Now()})
	s.UpdatedAt = time.Now()
}

// RecentContext returns up to maxTurns most recent messages, trimmed to a
// total character budget, oldest first.
func (s *WorkflowState) RecentContext(maxTurns, charBudget int) []Message {
	msgs := s.Messages
	if len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += len(msgs[i].Content)
		if total > charBudget {
			break
		}
		start = i
	}
	return msgs[start:]
}
