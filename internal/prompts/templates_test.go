package prompts_test

import (
	"strings"
	"testing"

	"EduQuest/server/internal/prompts"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	e := prompts.NewTemplateEngine()
	e.RegisterTemplate(&prompts.Template{
		Name:    "greet",
		Content: "你好，{{name}}！今天学{{topic}}。",
	})

	out, err := e.Render("greet", map[string]string{"name": "小明", "topic": "乘法"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "你好，小明！今天学乘法。" {
		t.Errorf("unexpected render: %q", out)
	}
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	e := prompts.NewTemplateEngine()
	e.RegisterTemplate(&prompts.Template{
		Name:    "partial",
		Content: "{{known}} and {{unknown}}",
	})

	out, err := e.Render("partial", map[string]string{"known": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "x and {{unknown}}" {
		t.Errorf("unknown placeholder must survive, got %q", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := prompts.NewTemplateEngine().Render("nope", nil); err == nil {
		t.Fatal("expected error for an unknown template")
	}
}

func TestDefaultTemplatesRegistered(t *testing.T) {
	e := prompts.NewTemplateEngine()
	names := []string{
		"extract_info", "clarify_question", "input_fitness", "sufficiency",
		"content_fitness", "negotiation", "framework_generate",
		"framework_review", "framework_improve", "storyboard", "dialogue",
		"welcome",
	}
	for _, name := range names {
		tmpl, err := e.GetTemplate(name)
		if err != nil {
			t.Errorf("template %s not registered: %v", name, err)
			continue
		}
		for _, v := range tmpl.Variables {
			if !strings.Contains(tmpl.Content, "{{"+v+"}}") {
				t.Errorf("template %s declares unused variable %s", name, v)
			}
		}
	}
}

func TestParseTemplateVariables(t *testing.T) {
	vars := prompts.ParseTemplateVariables("{{a}} {{b}} {{a}}")
	if len(vars) != 2 || vars[0] != "a" || vars[1] != "b" {
		t.Errorf("unexpected variables: %v", vars)
	}
}

func TestJoinList(t *testing.T) {
	if got := prompts.JoinList(nil); got != "（未提供）" {
		t.Errorf("empty list placeholder wrong: %q", got)
	}
	if got := prompts.JoinList([]string{"乘法", "除法"}); got != "乘法、除法" {
		t.Errorf("unexpected join: %q", got)
	}
}
