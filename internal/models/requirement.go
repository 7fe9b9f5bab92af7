package models

import (
	"strings"
	"time"
)

// CollectStage identifies one group of requirement fields gathered together
// during the dialogue.
type CollectStage string

const (
	StageBasic    CollectStage = "basic"
	StageTeaching CollectStage = "teaching"
	StageStyle    CollectStage = "style"
	StagePlot     CollectStage = "plot"
	StageComplete CollectStage = "complete"
)

// CollectStageOrder is the fixed priority order in which stages are filled.
var CollectStageOrder = []CollectStage{StageBasic, StageTeaching, StageStyle, StagePlot}

// StageFields maps each collection stage to the requirement fields it owns.
var StageFields = map[CollectStage][]string{
	StageBasic:    {"subject", "grade", "knowledge_points"},
	StageTeaching: {"teaching_goals", "teaching_difficulties"},
	StageStyle:    {"game_style", "character_design", "world_setting"},
	StagePlot:     {"plot_requirements", "interaction_requirements"},
}

// FieldReasons holds a human-readable explanation for each missing field,
// surfaced to the user when asking clarifying questions.
var FieldReasons = map[string]string{
	"subject":                  "the school subject the game should teach",
	"grade":                    "the grade level of the target students",
	"knowledge_points":         "the specific knowledge points to cover",
	"teaching_goals":           "what students should be able to do afterwards",
	"teaching_difficulties":    "the concepts students usually struggle with",
	"game_style":               "the overall art and game style",
	"character_design":         "the main characters and their personalities",
	"world_setting":            "the world or backdrop the story happens in",
	"plot_requirements":        "the plot beats or story elements required",
	"interaction_requirements": "how players should interact with each level",
}

// RequirementRecord is the aggregated teaching-game requirement collected
// over the dialogue. Scalar fields are absent when empty; list fields are
// absent when nil or empty. Merges only add, never remove.
type RequirementRecord struct {
	Subject                 string   `json:"subject,omitempty"`
	Grade                   string   `json:"grade,omitempty"`
	KnowledgePoints         []string `json:"knowledge_points,omitempty"`
	TeachingGoals           []string `json:"teaching_goals,omitempty"`
	TeachingDifficulties    []string `json:"teaching_difficulties,omitempty"`
	GameStyle               string   `json:"game_style,omitempty"`
	CharacterDesign         string   `json:"character_design,omitempty"`
	WorldSetting            string   `json:"world_setting,omitempty"`
	PlotRequirements        string   `json:"plot_requirements,omitempty"`
	InteractionRequirements string   `json:"interaction_requirements,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RequirementPatch carries newly extracted values from one user turn.
// Zero-valued fields leave the record untouched.
type RequirementPatch struct {
	Subject                 string   `json:"subject,omitempty"`
	Grade                   string   `json:"grade,omitempty"`
	KnowledgePoints         []string `json:"knowledge_points,omitempty"`
	TeachingGoals           []string `json:"teaching_goals,omitempty"`
	TeachingDifficulties    []string `json:"teaching_difficulties,omitempty"`
	GameStyle               string   `json:"game_style,omitempty"`
	CharacterDesign         string   `json:"character_design,omitempty"`
	WorldSetting            string   `json:"world_setting,omitempty"`
	PlotRequirements        string   `json:"plot_requirements,omitempty"`
	InteractionRequirements string   `json:"interaction_requirements,omitempty"`
}

// Merge applies a patch to the record. List fields are unioned without
// duplicates, scalar fields are overwritten by non-empty values.
func (r *RequirementRecord) Merge(p RequirementPatch) {
	if s := strings.TrimSpace(p.Subject); s != "" {
		r.Subject = s
	}
	if s := strings.TrimSpace(p.Grade); s != "" {
		r.Grade = s
	}
	if s := strings.TrimSpace(p.GameStyle); s != "" {
		r.GameStyle = s
	}
	if s := strings.TrimSpace(p.CharacterDesign); s != "" {
		r.CharacterDesign = s
	}
	if s := strings.TrimSpace(p.WorldSetting); s != "" {
		r.WorldSetting = s
	}
	if s := strings.TrimSpace(p.PlotRequirements); s != "" {
		r.PlotRequirements = s
	}
	if s := strings.TrimSpace(p.InteractionRequirements); s != "" {
		r.InteractionRequirements = s
	}
	r.KnowledgePoints = unionStrings(r.KnowledgePoints, p.KnowledgePoints)
	r.TeachingGoals = unionStrings(r.TeachingGoals, p.TeachingGoals)
	r.TeachingDifficulties = unionStrings(r.TeachingDifficulties, p.TeachingDifficulties)
	r.UpdatedAt = time.Now()
}

// Reset clears all collected fields. The only way stage completeness may
// regress within a session.
func (r *RequirementRecord) Reset() {
	*r = RequirementRecord{}
}

// FieldPresent reports whether the named field has a usable value.
func (r *RequirementRecord) FieldPresent(name string) bool {
	switch name {
	case "subject":
		return r.Subject != ""
	case "grade":
		return r.Grade != ""
	case "knowledge_points":
		return len(r.KnowledgePoints) > 0
	case "teaching_goals":
		return len(r.TeachingGoals) > 0
	case "teaching_difficulties":
		return len(r.TeachingDifficulties) > 0
	case "game_style":
		return r.GameStyle != ""
	case "character_design":
		return r.CharacterDesign != ""
	case "world_setting":
		return r.WorldSetting != ""
	case "plot_requirements":
		return r.PlotRequirements != ""
	case "interaction_requirements":
		return r.InteractionRequirements != ""
	}
	return false
}

// StageComplete reports whether every field owned by the stage is present.
func (r *RequirementRecord) StageComplete(stage CollectStage) bool {
	for _, f := range StageFields[stage] {
		if !r.FieldPresent(f) {
			return false
		}
	}
	return true
}

// Complete reports whether all collection stages are complete.
func (r *RequirementRecord) Complete() bool {
	for _, stage := range CollectStageOrder {
		if !r.StageComplete(stage) {
			return false
		}
	}
	return true
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
