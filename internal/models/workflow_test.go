package models_test

import (
	"strings"
	"testing"

	"EduQuest/server/internal/models"
)

func TestWorkflowTransitions(t *testing.T) {
	valid := []struct {
		from, to models.WorkflowStage
	}{
		{models.WorkflowCollecting, models.WorkflowCollecting},
		{models.WorkflowCollecting, models.WorkflowSufficiencyReview},
		{models.WorkflowSufficiencyReview, models.WorkflowCollecting},
		{models.WorkflowSufficiencyReview, models.WorkflowFitnessReview},
		{models.WorkflowFitnessReview, models.WorkflowCollecting},
		{models.WorkflowFitnessReview, models.WorkflowFrameworkGen},
		{models.WorkflowFrameworkGen, models.WorkflowFrameworkReview},
		{models.WorkflowFrameworkReview, models.WorkflowFrameworkImprove},
		{models.WorkflowFrameworkReview, models.WorkflowLevelGeneration},
		{models.WorkflowFrameworkImprove, models.WorkflowFrameworkReview},
		{models.WorkflowLevelGeneration, models.WorkflowDone},
	}
	for _, tc := range valid {
		if !models.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be valid", tc.from, tc.to)
		}
	}

	invalid := []struct {
		from, to models.WorkflowStage
	}{
		{models.WorkflowCollecting, models.WorkflowFrameworkGen},
		{models.WorkflowCollecting, models.WorkflowDone},
		{models.WorkflowFrameworkGen, models.WorkflowCollecting},
		{models.WorkflowLevelGeneration, models.WorkflowCollecting},
		{models.WorkflowDone, models.WorkflowCollecting},
	}
	for _, tc := range invalid {
		if models.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be invalid", tc.from, tc.to)
		}
	}
}

func TestAdvanceRejectsInvalidEdge(t *testing.T) {
	state := models.NewWorkflowState("sess_test")
	if err := state.Advance(models.WorkflowDone); err == nil {
		t.Fatal("expected error advancing collecting -> done")
	}
	if state.Stage != models.WorkflowCollecting {
		t.Errorf("failed advance must not move the stage, got %s", state.Stage)
	}
}

func TestRecentContextTurnLimit(t *testing.T) {
	state := models.NewWorkflowState("sess_test")
	for i := 0; i < 20; i++ {
		state.AppendMessage("user", "message")
	}

	msgs := state.RecentContext(10, 100000)
	if len(msgs) != 10 {
		t.Errorf("expected 10 messages, got %d", len(msgs))
	}
}

func TestRecentContextCharBudget(t *testing.T) {
	state := models.NewWorkflowState("sess_test")
	state.AppendMessage("user", strings.Repeat("a", 500))
	state.AppendMessage("user", strings.Repeat("b", 500))
	state.AppendMessage("user", strings.Repeat("c", 500))

	msgs := state.RecentContext(10, 1000)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages within budget, got %d", len(msgs))
	}
	// Most recent messages survive trimming.
	if msgs[len(msgs)-1].Content[0] != 'c' {
		t.Error("expected the newest message to be kept")
	}
}
