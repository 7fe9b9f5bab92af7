package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/interfaces"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

// FrameworkLoop drives the generate -> review -> improve refinement cycle
// over the narrative framework. The loop always terminates: approval, or a
// forced pass once the iteration budget is spent.
type FrameworkLoop struct {
	model         interfaces.ModelCaller
	extractor     *extract.Extractor
	templates     *prompts.TemplateEngine
	dimMin        float64
	totalMin      float64
	maxIterations int
	timeout       time.Duration
}

// NewFrameworkLoop creates a refinement loop with the given thresholds.
func NewFrameworkLoop(model interfaces.ModelCaller, extractor *extract.Extractor, templates *prompts.TemplateEngine, dimMin, totalMin float64, maxIterations int, timeout time.Duration) *FrameworkLoop {
	if dimMin <= 0 {
		dimMin = 75
	}
	if totalMin <= 0 {
		totalMin = 80
	}
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &FrameworkLoop{
		model:         model,
		extractor:     extractor,
		templates:     templates,
		dimMin:        dimMin,
		totalMin:      totalMin,
		maxIterations: maxIterations,
		timeout:       timeout,
	}
}

// reviewPayload is the wire shape of a framework review.
type reviewPayload struct {
	EducationalAlignment float64  `json:"educational_alignment"`
	NarrativeCoherence   float64  `json:"narrative_coherence"`
	CharacterDesign      float64  `json:"character_design"`
	LevelStructure       float64  `json:"level_structure"`
	Engagement           float64  `json:"engagement"`
	AgeAppropriateness   float64  `json:"age_appropriateness"`
	Focuses              []string `json:"focuses"`
}

// Run executes the refinement loop, advancing the workflow stage through
// framework_generation -> framework_review <-> framework_improve. An error
// is returned only when the initial generation produces nothing; improve
// failures degrade to keeping the previous draft.
func (l *FrameworkLoop) Run(ctx context.Context, state *models.WorkflowState) error {
	if state.Stage != models.WorkflowFrameworkGen {
		return fmt.Errorf("framework loop invoked in stage %s", state.Stage)
	}

	text, err := l.generate(ctx, &state.Requirement)
	if err != nil {
		return fmt.Errorf("framework generation failed: %w", err)
	}
	state.Framework = models.FrameworkIteration{Text: text}

	if err := state.Advance(models.WorkflowFrameworkReview); err != nil {
		return err
	}

	iterations := 0
	for {
		review := l.review(ctx, &state.Requirement, state.Framework.Text)
		state.Framework.Review = &review
		state.Framework.Iterations = iterations

		if review.Passed {
			state.Framework.Approved = true
			log.Printf("[Framework] approved after %d improve cycles (total %.1f)", iterations, review.Total)
			return nil
		}
		if iterations >= l.maxIterations {
			state.Framework.ForcedPass = true
			log.Printf("[Framework] forced pass at iteration budget %d (total %.1f)", l.maxIterations, review.Total)
			return nil
		}

		if err := state.Advance(models.WorkflowFrameworkImprove); err != nil {
			return err
		}
		iterations++

		improved, err := l.improve(ctx, &state.Requirement, state.Framework.Text, review)
		if err != nil || improved == "" {
			// Keep the previous draft rather than discarding prior work.
			log.Printf("[Framework] improve cycle %d failed, keeping previous draft: %v", iterations, err)
		} else {
			state.Framework.Text = improved
		}

		if err := state.Advance(models.WorkflowFrameworkReview); err != nil {
			return err
		}
	}
}

func (l *FrameworkLoop) generate(ctx context.Context, record *models.RequirementRecord) (string, error) {
	prompt, err := l.templates.Render("framework_generate", map[string]string{
		"requirement": summarizeRequirement(record),
	})
	if err != nil {
		return "", err
	}
	text, err := l.model.Complete(ctx, prompt, l.timeout)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("empty framework draft")
	}
	return text, nil
}

// review scores one draft. A failed call or unreadable verdict yields a
// failing review so the loop keeps refining until its budget runs out.
func (l *FrameworkLoop) review(ctx context.Context, record *models.RequirementRecord, framework string) models.FrameworkReview {
	prompt, err := l.templates.Render("framework_review", map[string]string{
		"requirement": summarizeRequirement(record),
		"framework":   framework,
	})
	if err != nil {
		return l.failingReview(err)
	}

	reply, err := l.model.Complete(ctx, prompt, l.timeout)
	if err != nil {
		log.Printf("[Framework] review call failed: %v", err)
		return l.failingReview(err)
	}

	var payload reviewPayload
	if err := l.extractor.Extract(ctx, reply, &payload); err != nil {
		log.Printf("[Framework] review verdict unreadable: %v", err)
		return l.failingReview(err)
	}

	review := models.FrameworkReview{
		Dimensions: map[string]float64{
			"educational_alignment": payload.EducationalAlignment,
			"narrative_coherence":   payload.NarrativeCoherence,
			"character_design":      payload.CharacterDesign,
			"level_structure":       payload.LevelStructure,
			"engagement":            payload.Engagement,
			"age_appropriateness":   payload.AgeAppropriateness,
		},
		Focuses: payload.Focuses,
	}
	review.Evaluate(l.dimMin, l.totalMin)
	return review
}

func (l *FrameworkLoop) improve(ctx context.Context, record *models.RequirementRecord, framework string, review models.FrameworkReview) (string, error) {
	reviewJSON, err := json.Marshal(review)
	if err != nil {
		return "", err
	}
	prompt, err := l.templates.Render("framework_improve", map[string]string{
		"requirement": summarizeRequirement(record),
		"framework":   framework,
		"review":      string(reviewJSON),
	})
	if err != nil {
		return "", err
	}
	return l.model.Complete(ctx, prompt, l.timeout)
}

func (l *FrameworkLoop) failingReview(err error) models.FrameworkReview {
	review := models.FrameworkReview{
		Dimensions: make(map[string]float64, len(models.ReviewDimensions)),
		Focuses:    []string{fmt.Sprintf("评审暂时不可用: %v", err)},
	}
	for _, dim := range models.ReviewDimensions {
		review.Dimensions[dim] = 0
	}
	review.Evaluate(l.dimMin, l.totalMin)
	return review
}
