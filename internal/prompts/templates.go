package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// TemplateEngine manages prompt templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template represents a prompt template with variables
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// NewTemplateEngine creates a new template engine with the default
// pipeline templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.initializeDefaultTemplates()
	return e
}

// RegisterTemplate registers a new template
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[tmpl.Name] = tmpl
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render renders a template with the given variables. Unknown placeholders
// are left in place.
func (e *TemplateEngine) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}

	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		varName := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[varName]; ok {
			return value
		}
		return match
	})

	return result, nil
}

// ParseTemplateVariables lists the placeholder names used in a template body.
func ParseTemplateVariables(content string) []string {
	matches := varRegex.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}

// JoinList renders a string list for prompt interpolation.
func JoinList(items []string) string {
	if len(items) == 0 {
		return "（未提供）"
	}
	return strings.Join(items, "、")
}

func (e *TemplateEngine) initializeDefaultTemplates() {
	templates := []*Template{
		{
			Name:        "extract_info",
			Description: "Extracts requirement fields from one user turn",
			Content: `你是教育游戏需求分析师。请从用户的最新发言中提取需求信息。

## 当前已收集的需求
{{requirement}}

## 用户最新发言
{{user_input}}

## 提取要求
1. 只提取用户明确表达的信息，不要臆测
2. 列表字段提取为字符串数组
3. 未提及的字段省略，不要输出空值

请输出 JSON，字段可选：
{"subject": "...", "grade": "...", "knowledge_points": ["..."], "teaching_goals": ["..."], "teaching_difficulties": ["..."], "game_style": "...", "character_design": "...", "world_setting": "...", "plot_requirements": "...", "interaction_requirements": "..."}`,
			Variables: []string{"requirement", "user_input"},
		},
		{
			Name:        "clarify_question",
			Description: "Asks for the missing fields of the current stage",
			Content: `你是一位友好的教育游戏策划助手，正在与老师沟通游戏需求。

## 已收集的需求
{{requirement}}

## 当前阶段
{{stage}}

## 还缺少的信息
{{missing}}

请用亲切自然的语气，向老师提出1-2个问题来补全缺少的信息。不要罗列全部缺项，优先问最重要的。控制在100字以内。`,
			Variables: []string{"requirement", "stage", "missing"},
		},
		{
			Name:        "input_fitness",
			Description: "Checks the latest user turn for appropriateness",
			Content: `你是教育内容审核员。请判断用户的最新发言是否适合用于小学教育游戏的需求收集。

## 当前需求上下文
{{requirement}}

## 用户最新发言
{{user_input}}

## 审核维度
1. 是否包含不适合未成年人的内容（暴力、色情、恐怖等）
2. 是否与教育游戏设计完全无关
3. 是否存在恶意诱导

请输出 JSON：
{"verdict": "passed" 或 "rejected", "score": 0-100, "concerns": [{"category": "...", "severity": "high/medium/low", "description": "...", "suggestion": "..."}]}
没有问题时 concerns 为空数组。`,
			Variables: []string{"requirement", "user_input"},
		},
		{
			Name:        "sufficiency",
			Description: "Scores how sufficient the aggregated requirement is",
			Content: `你是教育游戏需求评估专家。请评估以下需求是否足以开始生成游戏内容。

## 完整需求
{{requirement}}

## 最近对话
{{context}}

## 评分维度（每项 0-100）
1. completeness：信息完整性，必要字段是否齐全且具体
2. clarity：表述清晰度，需求是否明确无歧义
3. feasibility：可行性，需求能否在6个关卡内实现
4. richness：丰富度，素材是否足够支撑有趣的剧情

请输出 JSON：
{"completeness": 0-100, "clarity": 0-100, "feasibility": 0-100, "richness": 0-100, "feedback": "不足之处的简要说明"}`,
			Variables: []string{"requirement", "context"},
		},
		{
			Name:        "content_fitness",
			Description: "Checks the aggregate requirement for appropriateness",
			Content: `你是教育内容审核员。请对完整的游戏需求做适宜性审核。

## 完整需求
{{requirement}}

## 最近对话
{{context}}

## 审核维度
1. 教学内容是否适合目标年级
2. 游戏风格与世界观是否适合未成年人
3. 是否存在价值观导向问题

请输出 JSON：
{"verdict": "passed" 或 "concerns", "score": 0-100, "concerns": [{"category": "...", "severity": "high/medium/low", "description": "...", "suggestion": "..."}]}
通过时 concerns 为空数组。`,
			Variables: []string{"requirement", "context"},
		},
		{
			Name:        "negotiation",
			Description: "Explains content-fitness concerns and proposes fixes",
			Content: `你是教育游戏策划助手。审核发现需求存在以下问题，请向老师友好地说明，并给出调整建议。

## 审核发现的问题
{{concerns}}

## 当前需求
{{requirement}}

要求：语气委婉，逐条给出可操作的替代方案，最后询问老师是否接受调整。控制在200字以内。`,
			Variables: []string{"concerns", "requirement"},
		},
		{
			Name:        "framework_generate",
			Description: "Generates the 6-level narrative framework",
			Content: `你是资深教育游戏编剧。请根据需求设计一个包含6个关卡的游戏剧情框架。

## 游戏需求
{{requirement}}

## 设计要求
1. 整体剧情有清晰的起承转合，主角贯穿始终
2. 每个关卡对应1-2个知识点，由浅入深
3. 大约三分之一的关卡设计剧情分支，其余为线性关卡
4. 每个关卡给出：关卡名称、场景概述、涉及知识点、剧情作用
5. 风格与世界观严格遵循需求中的设定

请输出完整的剧情框架文本，用"第N关"分段。`,
			Variables: []string{"requirement"},
		},
		{
			Name:        "framework_review",
			Description: "Scores a framework draft on six dimensions",
			Content: `你是教育游戏评审专家。请对以下剧情框架打分。

## 游戏需求
{{requirement}}

## 剧情框架
{{framework}}

## 评分维度（每项 0-100）
1. educational_alignment：知识点覆盖与教学目标契合度
2. narrative_coherence：剧情连贯性与完整性
3. character_design：角色塑造与需求设定一致性
4. level_structure：关卡结构与难度递进合理性
5. engagement：趣味性与互动性
6. age_appropriateness：与目标年级的适配度

请输出 JSON：
{"educational_alignment": 0-100, "narrative_coherence": 0-100, "character_design": 0-100, "level_structure": 0-100, "engagement": 0-100, "age_appropriateness": 0-100, "focuses": ["按优先级排列的改进点"]}`,
			Variables: []string{"requirement", "framework"},
		},
		{
			Name:        "framework_improve",
			Description: "Improves a framework draft using review feedback",
			Content: `你是资深教育游戏编剧。请根据评审意见改进剧情框架。

## 游戏需求
{{requirement}}

## 当前剧情框架
{{framework}}

## 评审意见
{{review}}

## 改进要求
1. 优先解决评审列出的改进点
2. 保留已经得到认可的部分，不要推倒重来
3. 保持6个关卡的结构不变

请输出改进后的完整剧情框架文本。`,
			Variables: []string{"requirement", "framework", "review"},
		},
		{
			Name:        "storyboard",
			Description: "Generates the structured storyboard for one level",
			Content: `你是教育游戏分镜师。请为第{{level_index}}关生成结构化分镜。

## 剧情框架
{{framework}}

## 游戏需求
{{requirement}}

## 分镜要求
1. 只针对第{{level_index}}关，忠实于框架中该关卡的设定
2. 场景描述具体可视化，方便后续生成插画
3. 台词脚本包含关键教学对话

请输出 JSON：
{"level_name": "...", "scene_description": "...", "visual_style": "...", "characters": ["..."], "script": "...", "composition": "...", "technical": "...", "knowledge_point": "...", "branching": true/false}`,
			Variables: []string{"level_index", "framework", "requirement"},
		},
		{
			Name:        "dialogue",
			Description: "Expands a storyboard script into a full dialogue",
			Content: `你是教育游戏对话编剧。请把分镜脚本扩写成完整的角色对话。

## 关卡分镜
{{storyboard}}

## 涉及知识点
{{knowledge_point}}

## 扩写要求
1. 对话共8-15轮，角色名与分镜一致
2. 知识点自然融入对话，不要生硬说教
3. 结尾设计一道二选一的小测验（A/B 两个选项），并标注正确答案

请输出完整对话文本。`,
			Variables: []string{"storyboard", "knowledge_point"},
		},
		{
			Name:        "welcome",
			Description: "Session greeting",
			Content: `你好！我是教育游戏策划助手。告诉我你想做一款什么样的教学游戏吧：教什么科目、面向几年级、希望覆盖哪些知识点？我会一步步帮你把需求变成一个完整的闯关游戏。`,
		},
	}

	for _, tmpl := range templates {
		if len(tmpl.Variables) == 0 {
			tmpl.Variables = ParseTemplateVariables(tmpl.Content)
		}
		e.RegisterTemplate(tmpl)
	}
}
