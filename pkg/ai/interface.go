package ai

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedResponse is returned when a provider answers with output that does not
// satisfy the requested schema (empty, not JSON, missing keys, unknown labels)
var ErrMalformedResponse = errors.New("malformed oracle response")

// ExtractedAction is one parent call-to-action found in an email
type ExtractedAction struct {
	Action string `json:"action"`
	Link   string `json:"link,omitempty"`
	Due    string `json:"due,omitempty"` // free text, e.g. "2026-10-23" or "Friday"
}

// ExtractedEvent is the schema the oracle fills for every event in an email
type ExtractedEvent struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Location      string            `json:"location,omitempty"`
	StartDate     string            `json:"start_date"`
	EndDate       string            `json:"end_date,omitempty"`
	StartTime     string            `json:"start_time,omitempty"`
	EndTime       string            `json:"end_time,omitempty"`
	ParentActions []ExtractedAction `json:"parent_actions,omitempty"`
}

// ExtractRequest carries one email to the oracle
type ExtractRequest struct {
	Subject   string
	Sender    string
	Body      string
	EmailDate time.Time
	Today     time.Time
}

// ClassifyRequest carries one action item and its parent event context to the oracle
type ClassifyRequest struct {
	Item             string
	Due              *time.Time
	EventTitle       string
	EventStart       time.Time
	EventDescription string
	Today            time.Time
}

// Oracle is the text-understanding service used for extraction and classification
// Implement this interface to add new AI providers (OpenAI, Gemini, Ollama, etc.)
type Oracle interface {
	// Extract returns the events described by an email, possibly none
	Extract(ctx context.Context, req ExtractRequest) ([]ExtractedEvent, error)
	// Classify returns one of the labels in PriorityLabels
	Classify(ctx context.Context, req ClassifyRequest) (string, error)
}

// Priority labels the oracle may answer with
const (
	LabelMustDo            = "must_do"
	LabelHighlyRecommended = "highly_recommended"
	LabelOptional          = "optional"
)

// PriorityLabels lists the accepted classification answers
var PriorityLabels = []string{LabelMustDo, LabelHighlyRecommended, LabelOptional}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
