package batch

import (
	"fmt"
	"math"
	"time"

	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/pipeline"
)

const messageNoFiles = "処理対象のファイルがありません"

// Aggregate folds per-item outcomes into the batch response. Unresolved
// references are reported separately and never count toward the totals.
func Aggregate(req models.BatchRequest, results []pipeline.ItemResult, unresolved []string, provider asr.Provider, elapsed time.Duration) *models.BatchResult {
	out := &models.BatchResult{
		Status:               "success",
		ProcessedFiles:       make([]string, 0, len(results)),
		UnresolvedFiles:      unresolved,
		ExecutionTimeSeconds: math.Round(elapsed.Seconds()*10) / 10,
		ASRProvider:          provider.Name(),
		ASRModel:             provider.Model(),
	}

	for _, r := range results {
		if r.Success {
			out.ProcessedFiles = append(out.ProcessedFiles, r.Item.FileRef)
		} else {
			out.ErrorFiles = append(out.ErrorFiles, r.Item.FileRef)
		}
	}

	out.Summary = models.BatchSummary{
		TotalFiles: len(results),
		Processed:  len(out.ProcessedFiles),
		Errors:     len(out.ErrorFiles),
		Unresolved: len(unresolved),
	}

	if sel := req.ByDevice; req.Mode() == models.BatchModeByDevice {
		blocks := sel.TimeBlocks
		if blocks == nil {
			blocks = []string{}
		}
		out.DeviceScope = &models.DeviceScope{
			DeviceID:            sel.DeviceID,
			LocalDate:           sel.LocalDate,
			TimeBlocksRequested: blocks,
		}
	}

	if len(results) == 0 {
		out.Message = messageNoFiles
	} else {
		out.Message = fmt.Sprintf("%d件中%d件を%sで正常に処理しました",
			out.Summary.TotalFiles, out.Summary.Processed, provider.Name())
	}
	return out
}
