package engine

import (
	"fmt"
	"strings"

	"EduQuest/server/internal/models"
)

// MissingField names a requirement field not yet collected, with a
// human-readable reason to surface in clarifying questions.
type MissingField struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// StageStatus is the outcome of stage selection for one record.
type StageStatus struct {
	Stage    models.CollectStage `json:"stage"`
	Missing  []MissingField      `json:"missing,omitempty"`
	Present  int                 `json:"present"`
	Required int                 `json:"required"`
	Ratio    float64             `json:"ratio"`
}

// SelectStage returns the first incomplete collection stage in priority
// order, its missing fields, and that stage's completion ratio. Pure
// function of the record: identical input yields identical output.
func SelectStage(r *models.RequirementRecord) StageStatus {
	for _, stage := range models.CollectStageOrder {
		fields := models.StageFields[stage]
		var missing []MissingField
		present := 0
		for _, f := range fields {
			if r.FieldPresent(f) {
				present++
				continue
			}
			missing = append(missing, MissingField{Name: f, Reason: models.FieldReasons[f]})
		}
		if len(missing) > 0 {
			return StageStatus{
				Stage:    stage,
				Missing:  missing,
				Present:  present,
				Required: len(fields),
				Ratio:    float64(present) / float64(len(fields)),
			}
		}
	}
	return StageStatus{Stage: models.StageComplete, Ratio: 1}
}

// OverallCompletion is the fraction of all requirement fields present.
func OverallCompletion(r *models.RequirementRecord) float64 {
	total, present := 0, 0
	for _, stage := range models.CollectStageOrder {
		for _, f := range models.StageFields[stage] {
			total++
			if r.FieldPresent(f) {
				present++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total)
}

// summarizeRequirement renders the record as prompt-ready text.
func summarizeRequirement(r *models.RequirementRecord) string {
	var b strings.Builder
	write := func(label, value string) {
		if value == "" {
			value = "（未提供）"
		}
		fmt.Fprintf(&b, "%s：%s\n", label, value)
	}
	write("科目", r.Subject)
	write("年级", r.Grade)
	write("知识点", strings.Join(r.KnowledgePoints, "、"))
	write("教学目标", strings.Join(r.TeachingGoals, "、"))
	write("教学难点", strings.Join(r.TeachingDifficulties, "、"))
	write("游戏风格", r.GameStyle)
	write("角色设定", r.CharacterDesign)
	write("世界观", r.WorldSetting)
	write("剧情要求", r.PlotRequirements)
	write("互动要求", r.InteractionRequirements)
	return b.String()
}
