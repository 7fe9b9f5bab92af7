package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"EduQuest/server/internal/engine"
	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

type mockModel struct {
	completeFunc func(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	calls        int
}

func (m *mockModel) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	m.calls++
	if m.completeFunc != nil {
		return m.completeFunc(ctx, prompt, timeout)
	}
	return "", errors.New("not configured")
}

func newGate(model *mockModel) *engine.QualityGate {
	return engine.NewQualityGate(model, extract.New(), prompts.NewTemplateEngine(), 75, time.Second)
}

func TestInputFitnessFailsClosedOnError(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	gate := newGate(model)

	a := gate.CheckInputFitness(context.Background(), "你好", &models.RequirementRecord{})
	if a.Verdict != models.VerdictRejected {
		t.Fatalf("expected rejected, got %s", a.Verdict)
	}
	if len(a.Concerns) == 0 {
		t.Error("expected at least one synthetic concern")
	}
	if a.Concerns[0].Severity != models.SeverityHigh {
		t.Errorf("expected high severity, got %s", a.Concerns[0].Severity)
	}
}

func TestInputFitnessFailsClosedOnUnparseableVerdict(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "this is definitely fine, trust me", nil
		},
	}
	gate := newGate(model)

	a := gate.CheckInputFitness(context.Background(), "你好", &models.RequirementRecord{})
	if a.Verdict != models.VerdictRejected {
		t.Errorf("unreadable verdict must reject, got %s", a.Verdict)
	}
}

func TestInputFitnessPasses(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return `{"verdict":"passed","score":95,"concerns":[]}`, nil
		},
	}
	gate := newGate(model)

	a := gate.CheckInputFitness(context.Background(), "想做数学游戏", &models.RequirementRecord{})
	if !a.Passed() {
		t.Errorf("expected pass, got %+v", a)
	}
}

func TestInputFitnessUnknownVerdictRejects(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return `{"verdict":"maybe","score":50,"concerns":[]}`, nil
		},
	}
	gate := newGate(model)

	if a := gate.CheckInputFitness(context.Background(), "你好", &models.RequirementRecord{}); a.Passed() {
		t.Error("unknown verdict string must not pass")
	}
}

func TestSufficiencyFailsOpenOnError(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "", errors.New("timeout")
		},
	}
	gate := newGate(model)

	a := gate.AssessSufficiency(context.Background(), &models.RequirementRecord{}, "")
	if a.Passed {
		t.Fatal("adapter failure must never accidentally pass sufficiency")
	}
	if a.Aggregate >= a.Threshold {
		t.Errorf("fallback aggregate %.1f must stay below threshold %.1f", a.Aggregate, a.Threshold)
	}
}

func TestSufficiencyFailsOpenOnUnparseableVerdict(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "sufficient enough I guess", nil
		},
	}
	gate := newGate(model)

	if a := gate.AssessSufficiency(context.Background(), &models.RequirementRecord{}, ""); a.Passed {
		t.Error("unreadable sufficiency verdict must not pass")
	}
}

func TestSufficiencyScoresParsed(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return `{"completeness":80,"clarity":85,"feasibility":90,"richness":81,"feedback":"很好"}`, nil
		},
	}
	gate := newGate(model)

	a := gate.AssessSufficiency(context.Background(), fullRequirement(), "context")
	if !a.Passed {
		t.Fatalf("expected pass, got %+v", a)
	}
	if a.Dimensions["clarity"] != 85 {
		t.Errorf("expected clarity 85, got %.1f", a.Dimensions["clarity"])
	}
	if a.Feedback != "很好" {
		t.Errorf("expected feedback carried through, got %q", a.Feedback)
	}
}

func TestContentFitnessConcernsBlock(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return `{"verdict":"concerns","score":60,"concerns":[{"category":"age","severity":"medium","description":"世界观偏暗黑","suggestion":"调亮一些"}]}`, nil
		},
	}
	gate := newGate(model)

	a := gate.CheckContentFitness(context.Background(), fullRequirement(), "")
	if a.Passed() {
		t.Fatal("concerns must block progression")
	}
	if len(a.Concerns) != 1 || a.Concerns[0].Suggestion != "调亮一些" {
		t.Errorf("expected parsed concern, got %+v", a.Concerns)
	}
}

func TestContentFitnessFailsClosedOnError(t *testing.T) {
	model := &mockModel{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "", errors.New("rate limit")
		},
	}
	gate := newGate(model)

	a := gate.CheckContentFitness(context.Background(), fullRequirement(), "")
	if a.Passed() {
		t.Error("adapter failure must not pass content fitness")
	}
	if a.Verdict != models.VerdictConcerns {
		t.Errorf("expected concerns verdict, got %s", a.Verdict)
	}
}
