package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RunReport is the archived record of one dispatch run.
type RunReport struct {
	*BatchResult
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Items      []ItemOutcome `json:"items"`
}

// ReportKey is the object key of a run report.
func ReportKey(started time.Time, runID fmt.Stringer) string {
	return fmt.Sprintf("reminder-runs/%s/%s.json", started.UTC().Format("2006/01/02"), runID)
}

func (d *Dispatcher) archiveReport(ctx context.Context, result *BatchResult, started time.Time, items []ItemOutcome) (string, error) {
	key := ReportKey(started, result.RunID)
	report := RunReport{
		BatchResult: result,
		StartedAt:   started,
		FinishedAt:  d.now().UTC(),
		Items:       items,
	}
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}
	if _, err := d.archive.Put(ctx, key, "application/json", data); err != nil {
		return "", fmt.Errorf("store run report: %w", err)
	}
	return key, nil
}
