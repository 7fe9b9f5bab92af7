package extract_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"EduQuest/server/internal/extract"
)

type payload struct {
	A int    `json:"a"`
	B string `json:"b,omitempty"`
}

func TestDirectDecode(t *testing.T) {
	var v payload
	err := extract.New().Extract(context.Background(), `{"a": 1}`, &v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != 1 {
		t.Errorf("expected a=1, got %d", v.A)
	}
}

func TestFencedPayloadWithProse(t *testing.T) {
	raw := "Here is your result:\n```json\n{\"a\":1}\n```\nThanks!"

	var v payload
	if err := extract.New().Extract(context.Background(), raw, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != 1 {
		t.Errorf("expected a=1, got %d", v.A)
	}
}

func TestRoundTripThroughProse(t *testing.T) {
	original := payload{A: 42, B: "第3关：乘法大冒险 {with braces}"}
	raw := "好的，以下是分镜：\n```json\n{\"a\":42,\"b\":\"第3关：乘法大冒险 {with braces}\"}\n```\n希望对你有帮助！"

	var v payload
	if err := extract.New().Extract(context.Background(), raw, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(v, original) {
		t.Errorf("round trip mismatch: got %+v want %+v", v, original)
	}
}

func TestBraceScanIgnoresBracesInStrings(t *testing.T) {
	raw := `The model said {"a":7,"b":"value with } and { inside"} and then kept talking.`

	var v payload
	if err := extract.New().Extract(context.Background(), raw, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != 7 || v.B != "value with } and { inside" {
		t.Errorf("unexpected decode: %+v", v)
	}
}

func TestRepairMissingClosingBrace(t *testing.T) {
	raw := `{"a": 5, "b": "truncated"`

	var v payload
	if err := extract.New().Extract(context.Background(), raw, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != 5 {
		t.Errorf("expected a=5, got %d", v.A)
	}
}

type mockReformatter struct {
	completeFunc func(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	calls        int
}

func (m *mockReformatter) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	m.calls++
	if m.completeFunc != nil {
		return m.completeFunc(ctx, prompt, timeout)
	}
	return "", errors.New("not configured")
}

func TestReformatterFallback(t *testing.T) {
	m := &mockReformatter{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return `{"a": 9}`, nil
		},
	}
	e := extract.NewWithReformatter(m, time.Second)

	var v payload
	err := e.Extract(context.Background(), "a equals nine, no json here", &v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.A != 9 {
		t.Errorf("expected a=9, got %d", v.A)
	}
	if m.calls != 1 {
		t.Errorf("expected exactly one reformat call, got %d", m.calls)
	}
}

func TestReformatterNotCalledWhenStaticSucceeds(t *testing.T) {
	m := &mockReformatter{}
	e := extract.NewWithReformatter(m, time.Second)

	var v payload
	if err := e.Extract(context.Background(), `{"a":3}`, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.calls != 0 {
		t.Errorf("reformatter should not run on clean input, got %d calls", m.calls)
	}
}

func TestTypedFailureCarriesRawText(t *testing.T) {
	raw := "nothing structured at all"

	var v payload
	err := extract.New().Extract(context.Background(), raw, &v)
	if err == nil {
		t.Fatal("expected error")
	}

	var extractErr *extract.ExtractError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *ExtractError, got %T", err)
	}
	if extractErr.Raw != raw {
		t.Errorf("expected raw text preserved, got %q", extractErr.Raw)
	}
}

func TestReformatterFailureYieldsTypedError(t *testing.T) {
	m := &mockReformatter{
		completeFunc: func(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
			return "", errors.New("model down")
		},
	}
	e := extract.NewWithReformatter(m, time.Second)

	var v payload
	err := e.Extract(context.Background(), "still nothing structured", &v)

	var extractErr *extract.ExtractError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *ExtractError, got %T", err)
	}
}
