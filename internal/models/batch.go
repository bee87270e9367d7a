package models

import "time"

// BatchMode tags which BatchRequest variant is set.
type BatchMode int

const (
	BatchModeNone BatchMode = iota
	BatchModeExplicit
	BatchModeByDevice
)

// ExplicitSelection lists file references directly.
type ExplicitSelection struct {
	FileRefs []string
}

// DeviceSelection selects every catalog entry of a device on a local date,
// optionally limited to a set of time blocks ("HH-MM").
type DeviceSelection struct {
	DeviceID   string
	LocalDate  string
	TimeBlocks []string
}

// BatchRequest is a tagged union: exactly one of Explicit or ByDevice is set
// once the request has been validated.
type BatchRequest struct {
	Explicit *ExplicitSelection
	ByDevice *DeviceSelection

	// Provider and Model optionally override the default ASR selection.
	Provider string
	Model    string
}

// Mode reports which variant is populated. ByDevice takes precedence.
func (r BatchRequest) Mode() BatchMode {
	switch {
	case r.ByDevice != nil:
		return BatchModeByDevice
	case r.Explicit != nil:
		return BatchModeExplicit
	default:
		return BatchModeNone
	}
}

// BatchSummary is identical across request variants.
type BatchSummary struct {
	TotalFiles int `json:"total_files"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
	Unresolved int `json:"unresolved"`
}

// DeviceScope echoes a ByDevice request in the batch result.
type DeviceScope struct {
	DeviceID            string   `json:"device_id"`
	LocalDate           string   `json:"local_date"`
	TimeBlocksRequested []string `json:"time_blocks_requested"`
}

// BatchResult is the batch endpoint response.
type BatchResult struct {
	Status  string       `json:"status"`
	Summary BatchSummary `json:"summary"`
	*DeviceScope
	ProcessedFiles       []string `json:"processed_files"`
	ErrorFiles           []string `json:"error_files"`
	UnresolvedFiles      []string `json:"unresolved_files,omitempty"`
	ExecutionTimeSeconds float64  `json:"execution_time_seconds"`
	Message              string   `json:"message"`
	ASRProvider          string   `json:"asr_provider"`
	ASRModel             string   `json:"asr_model"`
}

// AsyncRequest asks for one item to be transcribed in the background.
type AsyncRequest struct {
	FileRef    string
	DeviceID   string
	RecordedAt time.Time
	// RecordedAtRaw is echoed back verbatim in acknowledgments and events.
	RecordedAtRaw string
}

// WorkItem builds the single work item this request refers to.
func (r AsyncRequest) WorkItem() WorkItem {
	return WorkItem{FileRef: r.FileRef, DeviceID: r.DeviceID, RecordedAt: r.RecordedAt}
}

// AcceptAck is returned by the async endpoint before any work starts.
type AcceptAck struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	DeviceID   string `json:"device_id"`
	RecordedAt string `json:"recorded_at"`
}

// TerminalEvent is published exactly once per accepted async item.
type TerminalEvent struct {
	DeviceID       string           `json:"device_id"`
	RecordedAt     string           `json:"recorded_at"`
	FeatureType    FeatureType      `json:"feature_type"`
	Status         ProcessingStatus `json:"status"`
	ProcessedFiles []string         `json:"processed_files,omitempty"`
	Error          string           `json:"error,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}
