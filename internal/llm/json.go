package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const strictJSONInstruction = "\n\nIMPORTANT: Return raw JSON only. Do not use markdown, code fences, or any commentary before or after the JSON object."

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'",
	)
)

// CleanResponse strips markdown code fences and surrounding whitespace.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	start, end := -1, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i
			break
		}
	}
	for i := len(lines) - 1; i > start; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	if start < 0 {
		return text
	}
	inner := strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
	if inner == "" {
		return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
	}
	return inner
}

// RepairJSON applies the near-valid JSON heuristics: keep the outermost
// object, straighten curly quotes and drop trailing commas.
func RepairJSON(text string) string {
	if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first >= 0 && last > first {
		text = text[first : last+1]
	}
	text = quoteReplacer.Replace(text)
	return trailingComma.ReplaceAllString(text, "$1")
}

// ParseJSON cleans text and decodes it into v, repairing it once if needed.
func ParseJSON(text string, v any) error {
	cleaned := CleanResponse(text)
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(RepairJSON(cleaned)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

// ParseJSONResponse parses a JSON object from an LLM response, or returns nil.
func ParseJSONResponse(text string) map[string]any {
	var result map[string]any
	if err := ParseJSON(text, &result); err != nil {
		zap.S().Debugf("Failed to parse LLM response as JSON: %v", err)
		return nil
	}
	return result
}

// GenerateJSON sends req and decodes the answer into v. When the answer is
// not valid JSON even after repair, the request is retried exactly once with
// a stricter instruction. Returns ErrUnparseable if that fails too.
func GenerateJSON(ctx context.Context, gen Generator, label string, req Request, v any) (*Response, error) {
	resp, err := gen.GenerateContent(ctx, label, req)
	if err != nil {
		return nil, err
	}
	if err := ParseJSON(resp.Text, v); err == nil {
		return resp, nil
	}

	zap.S().Warnf("%s: response was not valid JSON, retrying with strict instruction", label)
	retry := req
	retry.Prompt = req.Prompt + strictJSONInstruction
	retry.JSON = true
	resp, err = gen.GenerateContent(ctx, label+" (json retry)", retry)
	if err != nil {
		return nil, err
	}
	if err := ParseJSON(resp.Text, v); err != nil {
		return resp, err
	}
	return resp, nil
}
