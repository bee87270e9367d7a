// Package schema defines the JSON request bodies of the HTTP API and
// validates them into domain requests.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
)

// BatchBody is the body of POST /fetch-and-transcribe.
type BatchBody struct {
	FilePaths  []string `json:"file_paths,omitempty"`
	DeviceID   string   `json:"device_id,omitempty"`
	LocalDate  string   `json:"local_date,omitempty"`
	TimeBlocks []string `json:"time_blocks,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	Model      string   `json:"model,omitempty"`
}

// AsyncBody is the body of POST /async-process.
type AsyncBody struct {
	FilePath   string `json:"file_path"`
	DeviceID   string `json:"device_id"`
	RecordedAt string `json:"recorded_at"`
}

const localDateLayout = "2006-01-02"

var timeBlockPattern = regexp.MustCompile(`^(\d{2})-(\d{2})$`)

// Validator converts request bodies into domain requests.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Batch validates b. device_id + local_date selects the device variant;
// otherwise file_paths is required. When both are given the device variant
// wins.
func (v *Validator) Batch(b BatchBody) (models.BatchRequest, error) {
	const op = "schema.batch"
	req := models.BatchRequest{
		Provider: strings.TrimSpace(b.Provider),
		Model:    strings.TrimSpace(b.Model),
	}

	deviceID := strings.TrimSpace(b.DeviceID)
	localDate := strings.TrimSpace(b.LocalDate)
	if deviceID != "" && localDate != "" {
		if err := ValidateLocalDate(localDate); err != nil {
			return models.BatchRequest{}, apperr.E(apperr.KindInvalidRequest, op, err)
		}
		for _, tb := range b.TimeBlocks {
			if err := ValidateTimeBlock(tb); err != nil {
				return models.BatchRequest{}, apperr.E(apperr.KindInvalidRequest, op, err)
			}
		}
		req.ByDevice = &models.DeviceSelection{
			DeviceID:   deviceID,
			LocalDate:  localDate,
			TimeBlocks: b.TimeBlocks,
		}
	}

	if len(b.FilePaths) > 0 {
		req.Explicit = &models.ExplicitSelection{FileRefs: b.FilePaths}
	}

	if req.Mode() == models.BatchModeNone {
		return models.BatchRequest{}, apperr.Errorf(apperr.KindInvalidRequest, op,
			"either device_id + local_date or file_paths is required")
	}
	return req, nil
}

// Async validates b. Every field is required and recorded_at must parse.
func (v *Validator) Async(b AsyncBody) (models.AsyncRequest, error) {
	const op = "schema.async"
	var missing []string
	if strings.TrimSpace(b.FilePath) == "" {
		missing = append(missing, "file_path")
	}
	if strings.TrimSpace(b.DeviceID) == "" {
		missing = append(missing, "device_id")
	}
	if strings.TrimSpace(b.RecordedAt) == "" {
		missing = append(missing, "recorded_at")
	}
	if len(missing) > 0 {
		return models.AsyncRequest{}, apperr.Errorf(apperr.KindInvalidRequest, op,
			"missing required fields: %s", strings.Join(missing, ", "))
	}

	recordedAt, err := models.ParseTimestamp(b.RecordedAt)
	if err != nil {
		return models.AsyncRequest{}, apperr.E(apperr.KindInvalidRequest, op, err)
	}
	return models.AsyncRequest{
		FileRef:       strings.TrimSpace(b.FilePath),
		DeviceID:      strings.TrimSpace(b.DeviceID),
		RecordedAt:    recordedAt,
		RecordedAtRaw: b.RecordedAt,
	}, nil
}

// ValidateLocalDate checks the YYYY-MM-DD form.
func ValidateLocalDate(v string) error {
	if _, err := time.Parse(localDateLayout, v); err != nil {
		return fmt.Errorf("local_date %q must be YYYY-MM-DD", v)
	}
	return nil
}

// ValidateTimeBlock checks the HH-MM form.
func ValidateTimeBlock(v string) error {
	m := timeBlockPattern.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("time block %q must be HH-MM", v)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return fmt.Errorf("time block %q is out of range", v)
	}
	return nil
}
