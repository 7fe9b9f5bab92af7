package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/interfaces"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

// sufficiencyFallbackScore is the conservative per-dimension default used
// when the sufficiency call fails. Below any sane threshold, so a broken
// reviewer always routes toward more conversation.
const sufficiencyFallbackScore = 40

// QualityGate runs the appropriateness and sufficiency checks that must
// both pass before content generation starts.
type QualityGate struct {
	model     interfaces.ModelCaller
	extractor *extract.Extractor
	templates *prompts.TemplateEngine
	threshold float64
	timeout   time.Duration
}

// NewQualityGate creates a quality gate over the given model transport.
func NewQualityGate(model interfaces.ModelCaller, extractor *extract.Extractor, templates *prompts.TemplateEngine, threshold float64, timeout time.Duration) *QualityGate {
	if threshold <= 0 {
		threshold = 75
	}
	return &QualityGate{
		model:     model,
		extractor: extractor,
		templates: templates,
		threshold: threshold,
		timeout:   timeout,
	}
}

// fitnessPayload is the wire shape of a fitness verdict.
type fitnessPayload struct {
	Verdict  string           `json:"verdict"`
	Score    float64          `json:"score"`
	Concerns []models.Concern `json:"concerns"`
}

// sufficiencyPayload is the wire shape of a sufficiency verdict.
type sufficiencyPayload struct {
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Feasibility  float64 `json:"feasibility"`
	Richness     float64 `json:"richness"`
	Feedback     string  `json:"feedback"`
}

// CheckInputFitness judges the latest user turn. Fails closed: any adapter
// or parse failure yields a rejection with a synthetic high-severity
// concern, never a silent pass.
func (g *QualityGate) CheckInputFitness(ctx context.Context, turnText string, record *models.RequirementRecord) models.FitnessAssessment {
	prompt, err := g.templates.Render("input_fitness", map[string]string{
		"requirement": summarizeRequirement(record),
		"user_input":  turnText,
	})
	if err != nil {
		return rejectedAssessment(err)
	}

	reply, err := g.model.Complete(ctx, prompt, g.timeout)
	if err != nil {
		log.Printf("[Gate] input fitness call failed: %v", err)
		return rejectedAssessment(err)
	}

	var payload fitnessPayload
	if err := g.extractor.Extract(ctx, reply, &payload); err != nil {
		log.Printf("[Gate] input fitness verdict unreadable: %v", err)
		return rejectedAssessment(err)
	}

	return assessmentFromPayload(payload, models.VerdictRejected)
}

// CheckContentFitness judges the aggregate requirement. Same fail-closed
// policy as CheckInputFitness, with a "concerns" verdict on failure.
func (g *QualityGate) CheckContentFitness(ctx context.Context, record *models.RequirementRecord, contextText string) models.FitnessAssessment {
	prompt, err := g.templates.Render("content_fitness", map[string]string{
		"requirement": summarizeRequirement(record),
		"context":     contextText,
	})
	if err != nil {
		return concernedAssessment(err)
	}

	reply, err := g.model.Complete(ctx, prompt, g.timeout)
	if err != nil {
		log.Printf("[Gate] content fitness call failed: %v", err)
		return concernedAssessment(err)
	}

	var payload fitnessPayload
	if err := g.extractor.Extract(ctx, reply, &payload); err != nil {
		log.Printf("[Gate] content fitness verdict unreadable: %v", err)
		return concernedAssessment(err)
	}

	return assessmentFromPayload(payload, models.VerdictConcerns)
}

// AssessSufficiency scores the aggregated requirement. Fails open toward
// more conversation: on any failure the result is a conservative default
// below threshold, never a pass.
func (g *QualityGate) AssessSufficiency(ctx context.Context, record *models.RequirementRecord, contextText string) models.SufficiencyAssessment {
	prompt, err := g.templates.Render("sufficiency", map[string]string{
		"requirement": summarizeRequirement(record),
		"context":     contextText,
	})
	if err != nil {
		return fallbackSufficiency(g.threshold, err)
	}

	reply, err := g.model.Complete(ctx, prompt, g.timeout)
	if err != nil {
		log.Printf("[Gate] sufficiency call failed: %v", err)
		return fallbackSufficiency(g.threshold, err)
	}

	var payload sufficiencyPayload
	if err := g.extractor.Extract(ctx, reply, &payload); err != nil {
		log.Printf("[Gate] sufficiency verdict unreadable: %v", err)
		return fallbackSufficiency(g.threshold, err)
	}

	assessment := models.NewSufficiencyAssessment(map[string]float64{
		"completeness": payload.Completeness,
		"clarity":      payload.Clarity,
		"feasibility":  payload.Feasibility,
		"richness":     payload.Richness,
	}, g.threshold)
	assessment.Feedback = payload.Feedback
	return assessment
}

// assessmentFromPayload normalizes a parsed verdict. Unknown verdict
// strings are treated as the failure verdict, not as a pass.
func assessmentFromPayload(payload fitnessPayload, failVerdict models.FitnessVerdict) models.FitnessAssessment {
	a := models.FitnessAssessment{
		Concerns: payload.Concerns,
		Score:    payload.Score,
	}
	if payload.Verdict == string(models.VerdictPassed) && len(payload.Concerns) == 0 {
		a.Verdict = models.VerdictPassed
	} else {
		a.Verdict = failVerdict
	}
	return a
}

func rejectedAssessment(err error) models.FitnessAssessment {
	return models.FitnessAssessment{
		Verdict: models.VerdictRejected,
		Concerns: []models.Concern{{
			Category:    "review_unavailable",
			Severity:    models.SeverityHigh,
			Description: fmt.Sprintf("内容审核未能给出可读的结论: %v", err),
			Suggestion:  "请稍后重新发送这条消息",
		}},
	}
}

func concernedAssessment(err error) models.FitnessAssessment {
	a := rejectedAssessment(err)
	a.Verdict = models.VerdictConcerns
	return a
}

func fallbackSufficiency(threshold float64, err error) models.SufficiencyAssessment {
	scores := make(map[string]float64, len(models.SufficiencyDimensions))
	for _, dim := range models.SufficiencyDimensions {
		scores[dim] = sufficiencyFallbackScore
	}
	a := models.NewSufficiencyAssessment(scores, threshold)
	a.Feedback = fmt.Sprintf("评估暂时不可用（%v），请再补充一些需求细节", err)
	return a
}
