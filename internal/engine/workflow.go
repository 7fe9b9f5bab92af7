package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/generators"
	"EduQuest/server/internal/interfaces"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

// TurnAction tells the caller how to proceed after a turn.
type TurnAction string

const (
	ActionRetry      TurnAction = "retry"
	ActionAwaitInput TurnAction = "await_input"
	ActionContinue   TurnAction = "continue"
)

// TurnResult is the externally visible outcome of one processed turn.
type TurnResult struct {
	SessionID      string                        `json:"session_id"`
	Stage          models.WorkflowStage          `json:"stage"`
	Message        string                        `json:"message"`
	Action         TurnAction                    `json:"action"`
	CompletionRate float64                       `json:"completion_rate"`
	MissingFields  []MissingField                `json:"missing_fields,omitempty"`
	Sufficiency    *models.SufficiencyAssessment `json:"sufficiency,omitempty"`
	Levels         []models.LevelRecord          `json:"levels,omitempty"`
	StoryID        string                        `json:"story_id,omitempty"`
	Persisted      bool                          `json:"persisted"`
}

// SessionStatus is a read-only snapshot for the status endpoint.
type SessionStatus struct {
	SessionID      string               `json:"session_id"`
	Stage          models.WorkflowStage `json:"stage"`
	CompletionRate float64              `json:"completion_rate"`
	Iterations     int                  `json:"iterations"`
	StoryID        string               `json:"story_id,omitempty"`
}

// WorkflowDeps bundles the collaborators the driver composes. Requirements,
// Stories and Image are optional; persistence is best-effort.
type WorkflowDeps struct {
	Model        interfaces.ModelCaller
	Image        interfaces.ImageGenerator
	Requirements interfaces.RequirementStore
	Stories      interfaces.StoryStore
	Notifier     interfaces.ProgressNotifier
	Config       config.WorkflowConfig
	ChatTimeout  time.Duration
	ImageTimeout time.Duration
}

type session struct {
	mu    sync.Mutex
	state *models.WorkflowState
}

// Workflow composes the stage controller, quality gates, refinement loop
// and level generator into the full directed graph, one session at a time.
type Workflow struct {
	model     interfaces.ModelCaller
	gate      *QualityGate
	loop      *FrameworkLoop
	levels    *generators.LevelGenerator
	extractor *extract.Extractor
	templates *prompts.TemplateEngine

	requirements interfaces.RequirementStore
	stories      interfaces.StoryStore

	cfg         config.WorkflowConfig
	chatTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewWorkflow wires the pipeline from its dependencies.
func NewWorkflow(deps WorkflowDeps) *Workflow {
	templates := prompts.NewTemplateEngine()
	extractor := extract.NewWithReformatter(deps.Model, deps.ChatTimeout)

	return &Workflow{
		model:     deps.Model,
		gate:      NewQualityGate(deps.Model, extractor, templates, deps.Config.SufficiencyThreshold, deps.ChatTimeout),
		loop:      NewFrameworkLoop(deps.Model, extractor, templates, deps.Config.ReviewDimensionMin, deps.Config.ReviewTotalMin, deps.Config.MaxIterations, deps.ChatTimeout),
		levels: generators.NewLevelGenerator(generators.LevelGeneratorOptions{
			Model:        deps.Model,
			Image:        deps.Image,
			Extractor:    extractor,
			Templates:    templates,
			Notifier:     deps.Notifier,
			LevelCount:   deps.Config.LevelCount,
			MaxWorkers:   deps.Config.MaxWorkers,
			TextTimeout:  deps.ChatTimeout,
			ImageTimeout: deps.ImageTimeout,
		}),
		extractor:    extractor,
		templates:    templates,
		requirements: deps.Requirements,
		stories:      deps.Stories,
		cfg:          deps.Config,
		chatTimeout:  deps.ChatTimeout,
		sessions:     make(map[string]*session),
	}
}

// StartSession creates a fresh session and returns its id and greeting.
func (w *Workflow) StartSession() (string, string) {
	sessionID := "sess_" + shortID()
	state := models.NewWorkflowState(sessionID)
	state.RequirementID = fmt.Sprintf("req_%s_%s", time.Now().Format("20060102150405"), shortID())

	greeting := "你好！我是教育游戏策划助手。"
	if tmpl, err := w.templates.GetTemplate("welcome"); err == nil {
		greeting = tmpl.Content
	}
	state.AppendMessage("assistant", greeting)

	w.mu.Lock()
	w.sessions[sessionID] = &session{state: state}
	w.mu.Unlock()

	log.Printf("[Workflow] session started: %s", sessionID)
	return sessionID, greeting
}

// ProcessTurn runs one turn of the workflow for a session.
func (w *Workflow) ProcessTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	sess, err := w.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.state
	switch state.Stage {
	case models.WorkflowCollecting, models.WorkflowSufficiencyReview, models.WorkflowFitnessReview:
		return w.processConversationTurn(ctx, state, userText)
	case models.WorkflowFrameworkGen, models.WorkflowFrameworkReview, models.WorkflowFrameworkImprove, models.WorkflowLevelGeneration:
		// A previous turn failed mid-generation; resume from where it stopped.
		state.AppendMessage("user", userText)
		return w.runGeneration(ctx, state)
	case models.WorkflowDone:
		return &TurnResult{
			SessionID: state.SessionID,
			Stage:     state.Stage,
			Message:   fmt.Sprintf("游戏内容已经生成完毕（故事编号 %s），如需重新开始请重置会话。", state.StoryID),
			Action:    ActionContinue,
			Levels:    state.Levels,
			StoryID:   state.StoryID,
			Persisted: true,
		}, nil
	}
	return nil, fmt.Errorf("session %s in unknown stage %s", sessionID, state.Stage)
}

// processConversationTurn handles the collection and gating stages.
func (w *Workflow) processConversationTurn(ctx context.Context, state *models.WorkflowState, userText string) (*TurnResult, error) {
	state.AppendMessage("user", userText)

	// Input fitness, fail closed: an unreadable verdict never passes.
	fitness := w.gate.CheckInputFitness(ctx, userText, &state.Requirement)
	if !fitness.Passed() {
		msg := rejectionMessage(fitness)
		state.AppendMessage("assistant", msg)
		return w.collectingResult(state, msg, ActionAwaitInput), nil
	}

	// Extract and merge new fields. Extraction failure is tolerated: the
	// clarifying question will re-ask for whatever is still missing.
	if patch, err := w.extractPatch(ctx, state, userText); err != nil {
		log.Printf("[Workflow] field extraction failed for %s: %v", state.SessionID, err)
	} else {
		state.Requirement.Merge(patch)
	}

	persisted := w.saveRequirement(ctx, state)

	status := SelectStage(&state.Requirement)
	if status.Stage != models.StageComplete {
		msg := w.clarifyMessage(ctx, state, status)
		state.AppendMessage("assistant", msg)
		res := w.collectingResult(state, msg, ActionAwaitInput)
		res.MissingFields = status.Missing
		res.Persisted = persisted
		return res, nil
	}

	// Sufficiency, fail open toward more conversation.
	if err := state.Advance(models.WorkflowSufficiencyReview); err != nil {
		return nil, err
	}
	sufficiency := w.gate.AssessSufficiency(ctx, &state.Requirement, w.contextText(state))
	state.Sufficiency = &sufficiency
	if !sufficiency.Passed {
		if err := state.Advance(models.WorkflowCollecting); err != nil {
			return nil, err
		}
		msg := sufficiencyMessage(sufficiency)
		state.AppendMessage("assistant", msg)
		res := w.collectingResult(state, msg, ActionAwaitInput)
		res.Sufficiency = &sufficiency
		res.Persisted = persisted
		return res, nil
	}

	// Content fitness over the aggregate, fail closed.
	if err := state.Advance(models.WorkflowFitnessReview); err != nil {
		return nil, err
	}
	contentFitness := w.gate.CheckContentFitness(ctx, &state.Requirement, w.contextText(state))
	state.Fitness = &contentFitness
	if !contentFitness.Passed() {
		if err := state.Advance(models.WorkflowCollecting); err != nil {
			return nil, err
		}
		msg := w.negotiationMessage(ctx, state, contentFitness)
		state.AppendMessage("assistant", msg)
		res := w.collectingResult(state, msg, ActionAwaitInput)
		res.Persisted = persisted
		return res, nil
	}

	if err := state.Advance(models.WorkflowFrameworkGen); err != nil {
		return nil, err
	}
	return w.runGeneration(ctx, state)
}

// runGeneration drives the framework loop and level fan-out. Invoked both
// on first entry and when resuming after a mid-generation failure.
func (w *Workflow) runGeneration(ctx context.Context, state *models.WorkflowState) (*TurnResult, error) {
	if state.Stage == models.WorkflowFrameworkGen {
		if err := w.loop.Run(ctx, state); err != nil {
			// Collected state survives; caller retries this turn.
			log.Printf("[Workflow] framework loop failed for %s: %v", state.SessionID, err)
			msg := "剧情框架生成暂时失败了，已保留你提供的全部需求，请发送任意消息重试。"
			state.AppendMessage("assistant", msg)
			return w.collectingResult(state, msg, ActionRetry), nil
		}
	}

	if state.Stage == models.WorkflowFrameworkReview {
		if err := state.Advance(models.WorkflowLevelGeneration); err != nil {
			return nil, err
		}
	}
	if state.Stage != models.WorkflowLevelGeneration {
		return nil, fmt.Errorf("level generation invoked in stage %s", state.Stage)
	}
	if !state.Framework.Approved && !state.Framework.ForcedPass {
		return nil, fmt.Errorf("level generation invoked before framework approval")
	}

	state.Levels = w.levels.GenerateAll(ctx, state.SessionID, state.Framework.Text, &state.Requirement)
	state.StoryID = "story_" + shortID()

	persisted := w.saveStory(ctx, state)

	if err := state.Advance(models.WorkflowDone); err != nil {
		return nil, err
	}

	msg := completionMessage(state)
	state.AppendMessage("assistant", msg)

	return &TurnResult{
		SessionID:      state.SessionID,
		Stage:          state.Stage,
		Message:        msg,
		Action:         ActionContinue,
		CompletionRate: 1,
		Levels:         state.Levels,
		StoryID:        state.StoryID,
		Persisted:      persisted,
	}, nil
}

// Reset clears a session's collected state back to the start.
func (w *Workflow) Reset(sessionID string) error {
	sess, err := w.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := models.NewWorkflowState(sessionID)
	state.RequirementID = fmt.Sprintf("req_%s_%s", time.Now().Format("20060102150405"), shortID())
	sess.state = state
	log.Printf("[Workflow] session reset: %s", sessionID)
	return nil
}

// Status returns a read-only snapshot of a session.
func (w *Workflow) Status(sessionID string) (*SessionStatus, error) {
	sess, err := w.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.state
	return &SessionStatus{
		SessionID:      state.SessionID,
		Stage:          state.Stage,
		CompletionRate: OverallCompletion(&state.Requirement),
		Iterations:     state.Framework.Iterations,
		StoryID:        state.StoryID,
	}, nil
}

func (w *Workflow) lookup(sessionID string) (*session, error) {
	w.mu.RLock()
	sess, ok := w.sessions[sessionID]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return sess, nil
}

func (w *Workflow) extractPatch(ctx context.Context, state *models.WorkflowState, userText string) (models.RequirementPatch, error) {
	var patch models.RequirementPatch
	prompt, err := w.templates.Render("extract_info", map[string]string{
		"requirement": summarizeRequirement(&state.Requirement),
		"user_input":  userText,
	})
	if err != nil {
		return patch, err
	}
	reply, err := w.model.Complete(ctx, prompt, w.chatTimeout)
	if err != nil {
		return patch, err
	}
	if err := w.extractor.Extract(ctx, reply, &patch); err != nil {
		return patch, err
	}
	return patch, nil
}

// clarifyMessage asks for the current stage's missing fields, falling back
// to a canned question when the model is unavailable.
func (w *Workflow) clarifyMessage(ctx context.Context, state *models.WorkflowState, status StageStatus) string {
	var missing []string
	for _, m := range status.Missing {
		missing = append(missing, fmt.Sprintf("%s（%s）", m.Name, m.Reason))
	}

	prompt, err := w.templates.Render("clarify_question", map[string]string{
		"requirement": summarizeRequirement(&state.Requirement),
		"stage":       string(status.Stage),
		"missing":     strings.Join(missing, "；"),
	})
	if err == nil {
		if reply, err := w.model.Complete(ctx, prompt, w.chatTimeout); err == nil && reply != "" {
			return reply
		}
	}

	reasons := make([]string, 0, len(status.Missing))
	for _, m := range status.Missing {
		reasons = append(reasons, m.Reason)
	}
	return fmt.Sprintf("收到！还想了解一下：%s。", strings.Join(reasons, "；"))
}

// negotiationMessage explains content-fitness concerns, with a canned
// fallback built from the concern records.
func (w *Workflow) negotiationMessage(ctx context.Context, state *models.WorkflowState, fitness models.FitnessAssessment) string {
	concernsJSON, _ := json.Marshal(fitness.Concerns)
	prompt, err := w.templates.Render("negotiation", map[string]string{
		"concerns":    string(concernsJSON),
		"requirement": summarizeRequirement(&state.Requirement),
	})
	if err == nil {
		if reply, err := w.model.Complete(ctx, prompt, w.chatTimeout); err == nil && reply != "" {
			return reply
		}
	}

	var lines []string
	for _, c := range fitness.Concerns {
		line := c.Description
		if c.Suggestion != "" {
			line += "，建议：" + c.Suggestion
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf("需求审核发现一些需要调整的地方：%s。你看这样调整可以吗？", strings.Join(lines, "；"))
}

func (w *Workflow) contextText(state *models.WorkflowState) string {
	msgs := state.RecentContext(w.cfg.ContextTurns, w.cfg.ContextCharBudget)
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func (w *Workflow) collectingResult(state *models.WorkflowState, msg string, action TurnAction) *TurnResult {
	return &TurnResult{
		SessionID:      state.SessionID,
		Stage:          state.Stage,
		Message:        msg,
		Action:         action,
		CompletionRate: OverallCompletion(&state.Requirement),
	}
}

// saveRequirement persists the current snapshot. Best-effort: failures are
// logged and surfaced via the result flag, never fatal.
func (w *Workflow) saveRequirement(ctx context.Context, state *models.WorkflowState) bool {
	if w.requirements == nil {
		return false
	}
	if err := w.requirements.SaveRequirement(ctx, state.RequirementID, state.SessionID, state.Requirement); err != nil {
		log.Printf("[Workflow] requirement save failed for %s: %v", state.SessionID, err)
		return false
	}
	return true
}

func (w *Workflow) saveStory(ctx context.Context, state *models.WorkflowState) bool {
	if w.stories == nil {
		return false
	}
	story := models.StoryResult{
		StoryID:       state.StoryID,
		RequirementID: state.RequirementID,
		Requirement:   state.Requirement,
		Framework:     state.Framework.Text,
		Levels:        state.Levels,
		CreatedAt:     time.Now(),
	}
	if err := w.stories.SaveStory(ctx, story); err != nil {
		log.Printf("[Workflow] story save failed for %s: %v", state.StoryID, err)
		return false
	}
	return true
}

func rejectionMessage(fitness models.FitnessAssessment) string {
	for _, c := range fitness.Concerns {
		if c.Suggestion != "" {
			return fmt.Sprintf("这条内容不太适合用于教学游戏：%s %s", c.Description, c.Suggestion)
		}
		if c.Description != "" {
			return fmt.Sprintf("这条内容不太适合用于教学游戏：%s", c.Description)
		}
	}
	return "这条内容不太适合用于教学游戏，请换个说法再试试。"
}

func sufficiencyMessage(a models.SufficiencyAssessment) string {
	if a.Feedback != "" {
		return fmt.Sprintf("需求还差一点细节（当前评分 %.0f/%.0f）：%s", a.Aggregate, a.Threshold, a.Feedback)
	}
	return fmt.Sprintf("需求还差一点细节（当前评分 %.0f/%.0f），再多描述一些教学目标和玩法想法吧。", a.Aggregate, a.Threshold)
}

func completionMessage(state *models.WorkflowState) string {
	succeeded := 0
	for _, lvl := range state.Levels {
		if lvl.Succeeded() {
			succeeded++
		}
	}
	return fmt.Sprintf("游戏内容生成完毕！共 %d 个关卡，其中 %d 个成功（故事编号 %s）。", len(state.Levels), succeeded, state.StoryID)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
