package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"weatherproof/internal/types"
)

func newTestTask() *types.Task {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &types.Task{
		ID:                 "tsk_roof01",
		ProjectID:          "prj_abc123",
		Name:               "Roof membrane install",
		Type:               "roofing",
		SequenceOrder:      3,
		WeatherSensitive:   true,
		Status:             types.TaskStatusOnTrack,
		TotalDelayDays:     2,
		ProgressPercentage: 40,
		DependsOn:          []string{"tsk_frame01"},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// scanFnForTask mirrors the column ordering in taskColumns.
func scanFnForTask(t *types.Task) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = t.ID
		*dest[1].(*string) = t.ProjectID
		*dest[2].(*string) = t.Name
		*dest[3].(*string) = t.Type
		*dest[4].(*int) = t.SequenceOrder
		*dest[5].(**time.Time) = t.ExpectedStart
		*dest[6].(**time.Time) = t.ExpectedEnd
		*dest[7].(**time.Time) = t.ActualStart
		*dest[8].(**time.Time) = t.ActualEnd
		*dest[9].(*bool) = t.WeatherSensitive
		*dest[10].(**types.WeatherThresholds) = t.Thresholds
		*dest[11].(*types.TaskStatus) = t.Status
		*dest[12].(*bool) = t.DelayedToday

		if t.DelayReason != "" {
			dr := t.DelayReason
			*dest[13].(**string) = &dr
		} else {
			*dest[13].(**string) = nil
		}

		*dest[14].(*int) = t.TotalDelayDays
		*dest[15].(*int) = t.ProgressPercentage
		*dest[16].(*[]string) = t.DependsOn
		*dest[17].(*[]string) = t.Blocks
		*dest[18].(*time.Time) = t.CreatedAt
		*dest[19].(*time.Time) = t.UpdatedAt
		return nil
	}
}

func TestTaskRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	want := newTestTask()
	want.Thresholds = &types.WeatherThresholds{WindSpeedMax: floatPtr(20)}
	want.DelayReason = "Wind speed 28.0 mph exceeds limit of 20.0 mph"

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: scanFnForTask(want)})

	got, err := repo.GetByID(context.Background(), "tsk_roof01", "prj_abc123")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.DelayReason, got.DelayReason)
	require.NotNil(t, got.Thresholds)
	assert.Equal(t, 20.0, *got.Thresholds.WindSpeedMax)
}

func TestTaskRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "tsk_missing", "prj_abc123")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTask, appErr.Code)
}

func TestTaskRepository_ListForEvaluation_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	t1 := newTestTask()
	t2 := newTestTask()
	t2.ID = "tsk_site01"
	t2.Thresholds = nil
	t2.WeatherSensitive = false

	rows := newMockRows(scanFnForTask(t1), scanFnForTask(t2))
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	got, err := repo.ListForEvaluation(context.Background(), "prj_abc123")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "tsk_roof01", got[0].ID)
	assert.Nil(t, got[1].Thresholds)
	assert.False(t, got[1].WeatherSensitive)
}

func TestTaskRepository_ListForEvaluation_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := repo.ListForEvaluation(context.Background(), "prj_abc123")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestTaskRepository_Update_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Update(context.Background(), newTestTask())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTaskRepository_Update_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Update(context.Background(), newTestTask())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTask, appErr.Code)
}

func TestTaskRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTaskRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), newTestTask())
	require.NoError(t, err)
}
