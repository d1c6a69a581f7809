// Package reports produces CSV delay documentation exports. The output is the
// claim-ready artifact: per-day task delay logs and costed delay events for a
// project over a date range.
package reports

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/jszwec/csvutil"

	"weatherproof/internal/db"
	"weatherproof/internal/types"
)

// DailyLogSource provides the per-task daily delay logs.
type DailyLogSource interface {
	ListForProjectBetween(ctx context.Context, projectID string, from, to time.Time) ([]*types.TaskDailyLog, error)
}

// DelayEventSource provides the project's delay events.
type DelayEventSource interface {
	List(ctx context.Context, projectID string, params db.ListDelayEventsParams) ([]*types.DelayEvent, types.PageInfo, error)
}

// TaskSource resolves task names for the daily log rows.
type TaskSource interface {
	ListByProject(ctx context.Context, projectID string) ([]*types.Task, error)
}

// Exporter streams delay documentation as CSV.
type Exporter struct {
	logs   DailyLogSource
	events DelayEventSource
	tasks  TaskSource
}

// NewExporter creates an Exporter over the given sources.
func NewExporter(logs DailyLogSource, events DelayEventSource, tasks TaskSource) *Exporter {
	return &Exporter{logs: logs, events: events, tasks: tasks}
}

// dailyLogRow is one line of the daily delay log export.
type dailyLogRow struct {
	Date        string `csv:"date"`
	TaskID      string `csv:"task_id"`
	TaskName    string `csv:"task_name"`
	Delayed     bool   `csv:"delayed"`
	DelayReason string `csv:"delay_reason"`
	Conditions  string `csv:"conditions"`
}

// delayEventRow is one line of the delay event export.
type delayEventRow struct {
	EventID       string  `csv:"event_id"`
	Cause         string  `csv:"cause"`
	Description   string  `csv:"description"`
	StartTime     string  `csv:"start_time"`
	EndTime       string  `csv:"end_time"`
	DurationHours float64 `csv:"duration_hours"`
	LaborCost     float64 `csv:"labor_cost"`
	EquipmentCost float64 `csv:"equipment_cost"`
	OverheadCost  float64 `csv:"overhead_cost"`
	TotalCost     float64 `csv:"total_cost"`
}

// WriteDailyLogCSV writes the project's daily delay log for [from, to) to w.
// Returns the number of data rows written. An empty range still writes the
// header so the download is a valid CSV.
func (e *Exporter) WriteDailyLogCSV(ctx context.Context, w io.Writer, projectID string, from, to time.Time) (int, error) {
	logs, err := e.logs.ListForProjectBetween(ctx, projectID, from, to)
	if err != nil {
		return 0, err
	}

	names := map[string]string{}
	tasks, err := e.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		names[t.ID] = t.Name
	}

	rows := make([]dailyLogRow, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, dailyLogRow{
			Date:        l.LogDate.Format("2006-01-02"),
			TaskID:      l.TaskID,
			TaskName:    names[l.TaskID],
			Delayed:     l.Delayed,
			DelayReason: l.DelayReason,
			Conditions:  l.Conditions,
		})
	}

	if err := writeCSV(w, rows, dailyLogRow{}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// WriteDelayEventCSV writes the project's delay events with start_time in
// [from, to) to w, newest first. Returns the number of data rows written.
func (e *Exporter) WriteDelayEventCSV(ctx context.Context, w io.Writer, projectID string, from, to time.Time) (int, error) {
	var rows []delayEventRow

	params := db.ListDelayEventsParams{From: from, To: to, Limit: 100}
	for {
		events, page, err := e.events.List(ctx, projectID, params)
		if err != nil {
			return 0, err
		}

		for _, ev := range events {
			row := delayEventRow{
				EventID:       ev.ID,
				Cause:         string(ev.Cause),
				Description:   ev.Description,
				StartTime:     ev.StartTime.UTC().Format(time.RFC3339),
				DurationHours: ev.DurationHours,
				LaborCost:     ev.LaborCost,
				EquipmentCost: ev.EquipmentCost,
				OverheadCost:  ev.OverheadCost,
				TotalCost:     ev.TotalCost,
			}
			if ev.EndTime != nil {
				row.EndTime = ev.EndTime.UTC().Format(time.RFC3339)
			}
			rows = append(rows, row)
		}

		if !page.HasMore {
			break
		}
		params.Cursor = page.NextCursor
	}

	if err := writeCSV(w, rows, delayEventRow{}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// writeCSV encodes rows with a header derived from the row type's csv tags.
// headerType carries the type so an empty slice still yields a header line.
func writeCSV[T any](w io.Writer, rows []T, headerType T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(rows) == 0 {
		if err := enc.EncodeHeader(headerType); err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to write csv header", err)
		}
	} else if err := enc.Encode(rows); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode csv rows", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to flush csv output", err)
	}
	return nil
}
