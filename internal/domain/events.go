package domain

import "time"

// ProgressEventType names a stage of the discovery or comparison pipeline
type ProgressEventType string

const (
	EventSearchStart        ProgressEventType = "search_start"
	EventSourceFound        ProgressEventType = "source_found"
	EventExtractionStart    ProgressEventType = "extraction_start"
	EventProductsFound      ProgressEventType = "products_found"
	EventResolutionStart    ProgressEventType = "resolution_start"
	EventProductResolved    ProgressEventType = "product_resolved"
	EventComparisonProgress ProgressEventType = "comparison_progress"
	EventDone               ProgressEventType = "done"
)

// ProgressEvent is one entry in the ordered progress stream emitted before
// the final payload. Delivery order is event order; the stream always ends
// with an explicit done sentinel.
type ProgressEvent struct {
	Type      ProgressEventType      `json:"type"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ProgressFunc receives pipeline progress events. Implementations must not
// block; slow consumers drop events rather than stall the pipeline.
type ProgressFunc func(event ProgressEvent)

// NewProgressEvent builds a timestamped event
func NewProgressEvent(eventType ProgressEventType, message string, data map[string]interface{}) ProgressEvent {
	return ProgressEvent{
		Type:      eventType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}
