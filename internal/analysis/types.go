// Package analysis implements the competitor analysis pipeline: validation,
// reachability probing, crawling, summarization, section extraction and the
// status transitions persisted for each submitted domain.
package analysis

import "time"

// Status represents the lifecycle state of an analysis record.
type Status string

// Status values persisted in the analysis.status column.
const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUnsupported Status = "unsupported"
)

// Terminal reports whether no further mutation may follow this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusUnsupported:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusUnsupported:
		return true
	default:
		return false
	}
}

// Record is one submitted domain and the outcome of its analysis.
type Record struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	URL         string     `json:"url"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Sections
	// ErrorMessage holds the human-readable reason for failed/unsupported records.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Sections are the seven labeled fields extracted from the summarizer output.
// Each one is independently optional.
type Sections struct {
	Summary          string `json:"summary,omitempty"`
	Direction        string `json:"direction,omitempty"`
	Compliance       string `json:"compliance,omitempty"`
	NewLaunches      string `json:"new_launches,omitempty"`
	FlagshipProduct  string `json:"flagship_product,omitempty"`
	UniqueFindings   string `json:"unique_findings,omitempty"`
	SentimentSummary string `json:"sentiment_summary,omitempty"`
}

// NewRecord carries the fields fixed at creation time.
type NewRecord struct {
	OwnerID   string
	URL       string
	Status    Status
	CreatedAt time.Time
}

// Update is the partial mutation applied when a record reaches a terminal state.
type Update struct {
	Status       Status
	CompletedAt  *time.Time
	Sections     *Sections
	ErrorMessage string
}

// CrawlPage is one page returned by a crawling provider.
type CrawlPage struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	RawContent string `json:"raw_content"`
}

// CrawlResult is the crawling provider's response.
type CrawlResult struct {
	BaseURL      string      `json:"base_url"`
	Results      []CrawlPage `json:"results"`
	ResponseTime float64     `json:"response_time,omitempty"`
	RequestID    string      `json:"request_id,omitempty"`
}

// Event is published whenever a record reaches a terminal status.
type Event struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	URL         string     `json:"url"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Attributes returns message attributes for subscription filtering.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"status":   string(e.Status),
		"owner_id": e.OwnerID,
	}
}
