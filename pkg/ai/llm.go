package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// completer is the single call every provider implements: one system prompt, one user
// message, text back. jsonMode asks the provider to constrain output to a JSON object.
type completer interface {
	complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
	name() string
}

// llmOracle implements Oracle on top of any completer
type llmOracle struct {
	llm completer
}

func newLLMOracle(llm completer) *llmOracle {
	return &llmOracle{llm: llm}
}

// Extract implements Oracle
func (o *llmOracle) Extract(ctx context.Context, req ExtractRequest) ([]ExtractedEvent, error) {
	text, err := o.llm.complete(ctx, extractionSystemPrompt, buildExtractionPrompt(req), true)
	if err != nil {
		return nil, fmt.Errorf("%s extraction failed: %w", o.llm.name(), err)
	}
	return decodeExtraction(text)
}

// Classify implements Oracle
func (o *llmOracle) Classify(ctx context.Context, req ClassifyRequest) (string, error) {
	text, err := o.llm.complete(ctx, classificationSystemPrompt, buildClassificationPrompt(req), true)
	if err != nil {
		return "", fmt.Errorf("%s classification failed: %w", o.llm.name(), err)
	}
	return decodeClassification(text)
}

// decodeExtraction accepts {"events": [...]} or a bare list, optionally wrapped in a
// markdown code fence
func decodeExtraction(text string) ([]ExtractedEvent, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	if strings.HasPrefix(body, "[") {
		var events []ExtractedEvent
		if err := json.Unmarshal([]byte(body), &events); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return events, nil
	}

	var wrapper struct {
		Events *[]ExtractedEvent `json:"events"`
	}
	if err := json.Unmarshal([]byte(extractObject(body)), &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wrapper.Events == nil {
		return nil, fmt.Errorf("%w: missing events key", ErrMalformedResponse)
	}
	return *wrapper.Events, nil
}

// decodeClassification accepts {"priority": "<label>"} or the bare label
func decodeClassification(text string) (string, error) {
	body := stripCodeFence(text)
	if body == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	label := body
	if strings.Contains(body, "{") {
		var out struct {
			Priority string `json:"priority"`
		}
		if err := json.Unmarshal([]byte(extractObject(body)), &out); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		label = out.Priority
	}

	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), `"'.`))
	label = strings.NewReplacer(" ", "_", "-", "_").Replace(label)
	for _, known := range PriorityLabels {
		if label == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrMalformedResponse, label)
}

// stripCodeFence removes a ```json ... ``` wrapper if present
func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// extractObject trims chatter around the outermost JSON object
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
