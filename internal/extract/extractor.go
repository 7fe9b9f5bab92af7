package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reformatter issues one model call asking for the text to be restated as
// valid JSON. Satisfied by any ModelCaller; nil disables the last-resort
// strategy.
type Reformatter interface {
	Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// ExtractError reports that every recovery strategy failed. Callers treat
// this as a normal outcome, not a program fault.
type ExtractError struct {
	Raw string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("could not extract structured payload: %v", e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

const reformatPrompt = `Convert the following text into a single valid JSON object.
Output only the JSON object, no explanation, no code fences.

%s`

// Extractor recovers a structured payload from free-form model text.
type Extractor struct {
	reformatter Reformatter
	timeout     time.Duration
}

// New creates an extractor without the model-based reformat fallback.
func New() *Extractor {
	return &Extractor{}
}

// NewWithReformatter creates an extractor whose last-resort strategy issues
// one reformat call through the given model.
func NewWithReformatter(r Reformatter, timeout time.Duration) *Extractor {
	return &Extractor{reformatter: r, timeout: timeout}
}

// Extract decodes one structured record out of raw into v, trying escalating
// repair strategies and stopping at the first success.
func (e *Extractor) Extract(ctx context.Context, raw string, v interface{}) error {
	trimmed := strings.TrimSpace(raw)

	lastErr := e.tryStatic(trimmed, v)
	if lastErr == nil {
		return nil
	}

	if e.reformatter != nil {
		prompt := fmt.Sprintf(reformatPrompt, raw)
		reply, err := e.reformatter.Complete(ctx, prompt, e.timeout)
		if err == nil {
			if err := e.tryStatic(strings.TrimSpace(reply), v); err == nil {
				return nil
			} else {
				lastErr = err
			}
		} else {
			lastErr = fmt.Errorf("reformat call failed: %w", err)
		}
	}

	return &ExtractError{Raw: raw, Err: lastErr}
}

// tryStatic runs the non-model strategies in order.
func (e *Extractor) tryStatic(text string, v interface{}) error {
	// Direct decode
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	// Strip code fences
	if stripped := stripFences(text); stripped != text {
		if err := json.Unmarshal([]byte(stripped), v); err == nil {
			return nil
		}
	}

	// Brace scan
	candidate := scanBalancedObject(text)
	if candidate != "" {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}

	// Close-brace repair
	repaired := repairBraces(text)
	if repaired != "" {
		err := json.Unmarshal([]byte(repaired), v)
		if err == nil {
			return nil
		}
		return fmt.Errorf("decode failed after brace repair: %w", err)
	}

	return fmt.Errorf("no JSON object found in %d bytes of text", len(text))
}

// stripFences removes a leading ```json / ``` marker line and a trailing
// ``` line when both are present.
func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop a language tag such as "json" on the fence line.
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// scanBalancedObject returns the substring from the first opening brace to
// its matching closer, counting depth and ignoring braces inside string
// literals. Empty when no balanced object exists.
func scanBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairBraces takes the text from the first opening brace and appends the
// closers needed to balance it. Empty when there is no opening brace.
func repairBraces(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	fragment := text[start:]
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	if inString {
		fragment += `"`
	}
	if depth > 0 {
		fragment += strings.Repeat("}", depth)
	}
	return fragment
}
