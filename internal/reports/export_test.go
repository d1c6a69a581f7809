package reports

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"weatherproof/internal/db"
	"weatherproof/internal/types"
)

type fakeLogSource struct {
	logs []*types.TaskDailyLog
	err  error
}

func (f *fakeLogSource) ListForProjectBetween(ctx context.Context, projectID string, from, to time.Time) ([]*types.TaskDailyLog, error) {
	return f.logs, f.err
}

type fakeEventSource struct {
	pages [][]*types.DelayEvent
	calls int
}

func (f *fakeEventSource) List(ctx context.Context, projectID string, params db.ListDelayEventsParams) ([]*types.DelayEvent, types.PageInfo, error) {
	if f.calls >= len(f.pages) {
		return nil, types.PageInfo{}, nil
	}
	page := f.pages[f.calls]
	f.calls++

	info := types.PageInfo{}
	if f.calls < len(f.pages) {
		info.HasMore = true
		info.NextCursor = page[len(page)-1].StartTime.Format(time.RFC3339Nano)
	}
	return page, info, nil
}

type fakeTaskSource struct {
	tasks []*types.Task
}

func (f *fakeTaskSource) ListByProject(ctx context.Context, projectID string) ([]*types.Task, error) {
	return f.tasks, nil
}

func TestWriteDailyLogCSV(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	logs := &fakeLogSource{logs: []*types.TaskDailyLog{
		{
			TaskID:      "tsk_roof",
			LogDate:     day,
			Delayed:     true,
			DelayReason: "Wind speed 30.0 mph exceeds limit of 25.0 mph",
			Conditions:  "Windy",
		},
		{
			TaskID:  "tsk_site",
			LogDate: day.Add(24 * time.Hour),
			Delayed: false,
		},
	}}
	tasks := &fakeTaskSource{tasks: []*types.Task{
		{ID: "tsk_roof", Name: "Roof membrane install"},
		{ID: "tsk_site", Name: "Site grading"},
	}}

	exporter := NewExporter(logs, &fakeEventSource{}, tasks)

	var buf bytes.Buffer
	n, err := exporter.WriteDailyLogCSV(context.Background(), &buf, "prj_1", day, day.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows written, got %d", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}

	if lines[0] != "date,task_id,task_name,delayed,delay_reason,conditions" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "2026-03-10,tsk_roof,Roof membrane install,true") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "2026-03-11,tsk_site,Site grading,false") {
		t.Errorf("unexpected second row: %s", lines[2])
	}
}

func TestWriteDailyLogCSV_EmptyRangeStillWritesHeader(t *testing.T) {
	exporter := NewExporter(&fakeLogSource{}, &fakeEventSource{}, &fakeTaskSource{})

	var buf bytes.Buffer
	n, err := exporter.WriteDailyLogCSV(context.Background(), &buf, "prj_1", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows, got %d", n)
	}

	got := strings.TrimSpace(buf.String())
	if got != "date,task_id,task_name,delayed,delay_reason,conditions" {
		t.Errorf("expected bare header, got: %q", got)
	}
}

func TestWriteDelayEventCSV_PaginatesToCompletion(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	page1 := []*types.DelayEvent{{
		ID:            "evt_2",
		Cause:         types.CauseWeather,
		Description:   "high wind",
		StartTime:     start.Add(48 * time.Hour),
		DurationHours: 0,
	}}
	page2 := []*types.DelayEvent{{
		ID:            "evt_1",
		Cause:         types.CauseWeather,
		StartTime:     start,
		EndTime:       &end,
		DurationHours: 8,
		LaborCost:     540,
		EquipmentCost: 120,
		OverheadCost:  800,
		TotalCost:     1460,
	}}

	events := &fakeEventSource{pages: [][]*types.DelayEvent{page1, page2}}
	exporter := NewExporter(&fakeLogSource{}, events, &fakeTaskSource{})

	var buf bytes.Buffer
	n, err := exporter.WriteDelayEventCSV(context.Background(), &buf, "prj_1", start, start.Add(96*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows across pages, got %d", n)
	}
	if events.calls != 2 {
		t.Errorf("expected 2 list calls, got %d", events.calls)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}

	if !strings.HasPrefix(lines[0], "event_id,cause,description,start_time,end_time,duration_hours") {
		t.Errorf("unexpected header: %s", lines[0])
	}

	// Open event has an empty end_time cell; closed event carries costs.
	if !strings.Contains(lines[1], "evt_2,weather,high wind,2026-03-12T14:00:00Z,,0") {
		t.Errorf("unexpected open event row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "evt_1,weather,,2026-03-10T14:00:00Z,2026-03-10T22:00:00Z,8,540,120,800,1460") {
		t.Errorf("unexpected closed event row: %s", lines[2])
	}
}
