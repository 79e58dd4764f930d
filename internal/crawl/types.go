// Package crawl defines core types shared across subsystems and implements
// the crawl orchestration engine: classifier, throttle, and worker pool.
package crawl

import (
	"time"
)

// TimestampLayout is the human-readable layout used in persisted records.
const TimestampLayout = "2006-01-02 15:04:05"

// ProductStatus is the classified sale state of a product page.
type ProductStatus string

// Product status values persisted in records and checkpoints.
const (
	StatusOnSale  ProductStatus = "on_sale"
	StatusSoldOut ProductStatus = "sold_out"
	StatusUnknown ProductStatus = "unknown"
	StatusError   ProductStatus = "error"
)

// SoldOutReason explains which page signal produced a sold_out verdict.
type SoldOutReason string

// Sold-out reasons, ordered by evidence strength.
const (
	ReasonMarkerPresent SoldOutReason = "marker_present"
	ReasonButtonHidden  SoldOutReason = "button_hidden"
)

// Task pairs a product identifier with the URL derived from it. Each task is
// dispatched to exactly one worker.
type Task struct {
	ProductID string
	URL       string
}

// FetchResult is the transient outcome of a single page fetch. It is consumed
// by the classifier and never persisted.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// ProductRecord is persisted for each processed identifier, including
// classified failures.
type ProductRecord struct {
	ProductID     string        `json:"product_id"`
	URL           string        `json:"url"`
	Title         string        `json:"title,omitempty"`
	Status        ProductStatus `json:"product_status"`
	SoldOutReason SoldOutReason `json:"soldout_reason,omitempty"`
	StatusCode    int           `json:"status_code"`
	CrawlTime     float64       `json:"crawl_time"`
	Timestamp     string        `json:"timestamp"`
}

// RunStats tracks aggregate counters for a logical run. Success and Failed
// always sum to the number of identifiers processed so far.
type RunStats struct {
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// State is the durable checkpoint for a logical run. It is owned by the
// orchestrator's completion loop and persisted after task completions so an
// interrupted run can resume without reprocessing.
type State struct {
	RunID     string                   `json:"run_id"`
	Processed map[string]ProductStatus `json:"processed"`
	Records   []ProductRecord          `json:"records"`
	Stats     RunStats                 `json:"stats"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Empty reports whether the state carries no prior progress.
func (s State) Empty() bool {
	return s.RunID == "" && len(s.Processed) == 0 && len(s.Records) == 0
}

// Document is the final result shape handed to the result writer.
type Document struct {
	Metadata Metadata        `json:"metadata"`
	Products []ProductRecord `json:"products"`
}

// Metadata summarizes a run inside the result document.
type Metadata struct {
	TotalCrawled int          `json:"total_crawled"`
	Stats        StatsSummary `json:"stats"`
	Timestamp    string       `json:"timestamp"`
}

// StatsSummary is the counter triple persisted in result metadata.
type StatsSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BuildDocument assembles the result document from checkpointed state.
func BuildDocument(state State, now time.Time) Document {
	products := state.Records
	if products == nil {
		products = []ProductRecord{}
	}
	return Document{
		Metadata: Metadata{
			TotalCrawled: len(state.Records),
			Stats: StatsSummary{
				Total:   state.Stats.Total,
				Success: state.Stats.Success,
				Failed:  state.Stats.Failed,
			},
			Timestamp: now.Format(TimestampLayout),
		},
		Products: products,
	}
}
