package domain

import "time"

// RunKind identifies which pipeline produced a run summary
type RunKind string

const (
	RunKindFetch  RunKind = "fetch"
	RunKindDigest RunKind = "digest"
)

// SyncState is the persisted watermark: the receive time of the last email whose events
// were all durably synced or explicitly skipped
type SyncState struct {
	Watermark time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailureDetail describes one item that failed during a run
type FailureDetail struct {
	EmailID string `json:"email_id,omitempty"`
	Event   string `json:"event,omitempty"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// RunSummary is the user-visible outcome of a fetch or digest run
type RunSummary struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Kind       RunKind   `json:"kind" gorm:"index;not null"`
	StartedAt  time.Time `json:"started_at" gorm:"index"`
	FinishedAt time.Time `json:"finished_at"`

	EmailsSeen         int `json:"emails_seen"`
	EmailsSkipped      int `json:"emails_skipped"`
	EmailsFailed       int `json:"emails_failed"`
	ExtractionFailures int `json:"extraction_failures"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Discarded int `json:"discarded"`

	DigestItems            int  `json:"digest_items"`
	DigestEmpty            bool `json:"digest_empty"`
	ClassificationFailures int  `json:"classification_failures"`
	Recipients             int  `json:"recipients"`
	Sent                   int  `json:"sent"`
	SendFailures           int  `json:"send_failures"`
	DryRun                 bool `json:"dry_run"`

	WatermarkBefore *time.Time `json:"watermark_before,omitempty"`
	WatermarkAfter  *time.Time `json:"watermark_after,omitempty"`

	Error    string          `json:"error,omitempty"`
	Failures []FailureDetail `json:"failures,omitempty" gorm:"serializer:json"`
}

// TableName specifies the table name for GORM
func (RunSummary) TableName() string {
	return "run_summaries"
}

// AddFailure records a failed item on the summary
func (s *RunSummary) AddFailure(emailID, event, stage string, err error) {
	s.Failures = append(s.Failures, FailureDetail{
		EmailID: emailID,
		Event:   event,
		Stage:   stage,
		Error:   err.Error(),
	})
}
