package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"vibe-transcriber-service/internal/models"
)

// ImportReport summarizes a catalog import.
type ImportReport struct {
	Rows     int
	Imported int
	Skipped  int
}

// catalogSheet maps header names to column indexes.
type catalogSheet struct {
	filePath, deviceID, recordedAt, localDate, localTime, timeBlock int
}

func detectColumns(header []string) (catalogSheet, error) {
	cols := catalogSheet{-1, -1, -1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "file_path", "file path", "path", "key":
			cols.filePath = i
		case "device_id", "device id", "device":
			cols.deviceID = i
		case "recorded_at", "recorded at", "timestamp":
			cols.recordedAt = i
		case "local_date", "local date", "date":
			cols.localDate = i
		case "local_time", "local time":
			cols.localTime = i
		case "time_block", "time block", "block":
			cols.timeBlock = i
		}
	}
	if cols.filePath < 0 || cols.deviceID < 0 || cols.recordedAt < 0 {
		return cols, fmt.Errorf("sheet must have file_path, device_id and recorded_at columns")
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ReadCatalogSheet parses the first sheet of an .xlsx workbook into catalog
// entries. Rows with a missing key or unparseable timestamp are skipped.
func ReadCatalogSheet(path string) ([]models.CatalogEntry, ImportReport, error) {
	var report ImportReport

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, report, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, report, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, report, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, report, fmt.Errorf("empty sheet")
	}
	cols, err := detectColumns(rows[0])
	if err != nil {
		return nil, report, err
	}

	var out []models.CatalogEntry
	for _, r := range rows[1:] {
		report.Rows++
		entry := models.CatalogEntry{
			FileRef:  cell(r, cols.filePath),
			DeviceID: cell(r, cols.deviceID),
		}
		ts, err := models.ParseTimestamp(cell(r, cols.recordedAt))
		if entry.FileRef == "" || entry.DeviceID == "" || err != nil {
			report.Skipped++
			continue
		}
		entry.RecordedAt = ts
		if v := cell(r, cols.localDate); v != "" {
			entry.LocalDate = &v
		}
		if v := cell(r, cols.localTime); v != "" {
			entry.LocalTime = &v
		}
		entry.TimeBlock = cell(r, cols.timeBlock)
		if entry.TimeBlock == "" && entry.LocalTime != nil {
			entry.TimeBlock = TimeBlockOf(*entry.LocalTime)
		}
		out = append(out, entry)
	}
	return out, report, nil
}

// ImportCatalog reads an .xlsx workbook and upserts every valid row.
func (s *Store) ImportCatalog(ctx context.Context, path string) (ImportReport, error) {
	entries, report, err := ReadCatalogSheet(path)
	if err != nil {
		return report, err
	}
	for _, e := range entries {
		if err := s.UpsertCatalogEntry(ctx, e); err != nil {
			return report, err
		}
		report.Imported++
	}
	s.log.Info().
		Str("path", path).
		Int("rows", report.Rows).
		Int("imported", report.Imported).
		Int("skipped", report.Skipped).
		Msg("Catalog import finished")
	return report, nil
}

// TimeBlockOf derives the 30-minute "HH-MM" block from a local time such as
// "09:47:12" or "2024-01-01 09:47:12".
func TimeBlockOf(localTime string) string {
	t := localTime
	if i := strings.LastIndexByte(t, ' '); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.IndexByte(t, 'T'); i >= 0 {
		t = t[i+1:]
	}
	if len(t) < 5 || t[2] != ':' {
		return ""
	}
	hh, mm := t[0:2], t[3:5]
	if mm >= "30" {
		return hh + "-30"
	}
	return hh + "-00"
}
