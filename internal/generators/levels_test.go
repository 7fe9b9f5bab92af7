package generators_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/generators"
	"EduQuest/server/internal/interfaces"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

const storyboardJSON = `{"level_name":"乘法森林","scene_description":"茂密的森林中藏着乘法谜题","visual_style":"像素风","characters":["小数学家","森林精灵"],"script":"精灵：想通过就答对三道乘法题！","knowledge_point":"乘法口诀","branching":false}`

// levelMock answers storyboard and dialogue prompts, with per-level
// failure injection.
type levelMock struct {
	mu               sync.Mutex
	failLevels       map[int]bool
	storyboardCalls  map[int]int
	dialogueErr      error
	respectCtxCancel bool
}

func newLevelMock() *levelMock {
	return &levelMock{
		failLevels:      make(map[int]bool),
		storyboardCalls: make(map[int]int),
	}
}

func (m *levelMock) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if m.respectCtxCancel && ctx.Err() != nil {
		return "", ctx.Err()
	}

	if strings.Contains(prompt, "生成结构化分镜") {
		level := 0
		for i := 1; i <= 10; i++ {
			if strings.Contains(prompt, fmt.Sprintf("请为第%d关生成", i)) {
				level = i
				break
			}
		}
		m.mu.Lock()
		m.storyboardCalls[level]++
		fail := m.failLevels[level]
		m.mu.Unlock()
		if fail {
			return "", errors.New("storyboard model error")
		}
		return storyboardJSON, nil
	}

	if strings.Contains(prompt, "扩写成完整的角色对话") {
		if m.dialogueErr != nil {
			return "", m.dialogueErr
		}
		return "精灵：你好呀！（8-15轮对话……）A. 12 B. 14", nil
	}

	return "", fmt.Errorf("unexpected prompt: %.40s", prompt)
}

func (m *levelMock) calls(level int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storyboardCalls[level]
}

type mockImageGen struct {
	err error
}

func (m *mockImageGen) GenerateImage(ctx context.Context, prompt interfaces.ImagePrompt, timeout time.Duration) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://images.example/level.png", nil
}

func newGenerator(model *levelMock, image interfaces.ImageGenerator) *generators.LevelGenerator {
	return generators.NewLevelGenerator(generators.LevelGeneratorOptions{
		Model:       model,
		Image:       image,
		Extractor:   extract.New(),
		Templates:   prompts.NewTemplateEngine(),
		LevelCount:  6,
		MaxWorkers:  10,
		TextTimeout: time.Second,
	})
}

func TestFanInProducesAllLevelsSorted(t *testing.T) {
	model := newLevelMock()
	gen := newGenerator(model, &mockImageGen{})

	records := gen.GenerateAll(context.Background(), "sess_test", "framework", fullRequirement())
	if len(records) != 6 {
		t.Fatalf("expected 6 level records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.LevelIndex != i+1 {
			t.Errorf("record %d has level index %d, want %d", i, rec.LevelIndex, i+1)
		}
		if rec.StoryboardStatus != models.PhaseCompleted {
			t.Errorf("level %d storyboard not completed: %+v", rec.LevelIndex, rec)
		}
		if rec.ImageStatus != models.PhaseCompleted || rec.ImageRef == "" {
			t.Errorf("level %d image not completed", rec.LevelIndex)
		}
		if rec.DialogueStatus != models.PhaseCompleted || rec.DialogueText == "" {
			t.Errorf("level %d dialogue not completed", rec.LevelIndex)
		}
		if rec.LevelName != "乘法森林" {
			t.Errorf("level %d name not taken from storyboard: %q", rec.LevelIndex, rec.LevelName)
		}
	}
}

func TestSingleLevelFailureDoesNotAffectSiblings(t *testing.T) {
	model := newLevelMock()
	model.failLevels[3] = true
	gen := newGenerator(model, &mockImageGen{})

	records := gen.GenerateAll(context.Background(), "sess_test", "framework", fullRequirement())
	if len(records) != 6 {
		t.Fatalf("expected 6 level records, got %d", len(records))
	}

	for _, rec := range records {
		if rec.LevelIndex == 3 {
			if rec.Succeeded() {
				t.Error("level 3 should have failed")
			}
			if rec.StoryboardStatus != models.PhaseFailed || rec.StoryboardError == "" {
				t.Errorf("level 3 storyboard should be failed with an error, got %+v", rec)
			}
			if rec.ImageStatus != models.PhaseSkipped || rec.DialogueStatus != models.PhaseSkipped {
				t.Errorf("level 3 sub-phases should be skipped, got %s/%s", rec.ImageStatus, rec.DialogueStatus)
			}
			continue
		}
		if !rec.Succeeded() {
			t.Errorf("level %d should be unaffected, got %+v", rec.LevelIndex, rec)
		}
	}

	if got := model.calls(3); got != 3 {
		t.Errorf("expected 3 storyboard attempts for level 3, got %d", got)
	}
	if got := model.calls(1); got != 1 {
		t.Errorf("expected 1 storyboard attempt for level 1, got %d", got)
	}
}

func TestImageFailureDegradesGracefully(t *testing.T) {
	model := newLevelMock()
	gen := newGenerator(model, &mockImageGen{err: errors.New("image service down")})

	records := gen.GenerateAll(context.Background(), "sess_test", "framework", fullRequirement())
	for _, rec := range records {
		if !rec.Succeeded() {
			t.Errorf("level %d must succeed despite image failure", rec.LevelIndex)
		}
		if rec.ImageStatus != models.PhaseFailed || rec.ImageError == "" {
			t.Errorf("level %d image should be failed with an error", rec.LevelIndex)
		}
		if rec.DialogueStatus != models.PhaseCompleted {
			t.Errorf("level %d dialogue should still complete", rec.LevelIndex)
		}
	}
}

func TestDialogueFailureDegradesGracefully(t *testing.T) {
	model := newLevelMock()
	model.dialogueErr = errors.New("dialogue model error")
	gen := newGenerator(model, &mockImageGen{})

	records := gen.GenerateAll(context.Background(), "sess_test", "framework", fullRequirement())
	for _, rec := range records {
		if !rec.Succeeded() {
			t.Errorf("level %d must succeed despite dialogue failure", rec.LevelIndex)
		}
		if rec.DialogueStatus != models.PhaseFailed {
			t.Errorf("level %d dialogue should be failed, got %s", rec.LevelIndex, rec.DialogueStatus)
		}
	}
}

func TestNilImageAdapterSkipsImagePhase(t *testing.T) {
	model := newLevelMock()
	gen := newGenerator(model, nil)

	records := gen.GenerateAll(context.Background(), "sess_test", "framework", fullRequirement())
	for _, rec := range records {
		if rec.ImageStatus != models.PhaseSkipped {
			t.Errorf("level %d image should be skipped without an adapter, got %s", rec.LevelIndex, rec.ImageStatus)
		}
	}
}

func TestCancellationLeavesNoNonTerminalLevels(t *testing.T) {
	model := newLevelMock()
	model.respectCtxCancel = true
	gen := newGenerator(model, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := gen.GenerateAll(ctx, "sess_test", "framework", fullRequirement())
	if len(records) != 6 {
		t.Fatalf("expected 6 level records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.StoryboardStatus != models.PhaseFailed {
			t.Errorf("cancelled level %d must be terminal, got %s", rec.LevelIndex, rec.StoryboardStatus)
		}
		if !strings.Contains(rec.StoryboardError, "cancel") {
			t.Errorf("cancelled level %d should carry a cancellation reason, got %q", rec.LevelIndex, rec.StoryboardError)
		}
	}
}

func fullRequirement() *models.RequirementRecord {
	return &models.RequirementRecord{
		Subject:         "数学",
		Grade:           "三年级",
		KnowledgePoints: []string{"乘法口诀"},
	}
}
