package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"estateadmin/internal/database"
	"estateadmin/internal/export"
	"estateadmin/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 10*time.Second, policy.NextDelay(10), "clamped to max delay")
	assert.Equal(t, time.Second, policy.NextDelay(0), "attempt floor")
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
}

type countingWorkbook struct {
	calls atomic.Int32
	rows  atomic.Int32
}

func (c *countingWorkbook) WriteReservationsWorkbook(_ context.Context, rows []export.ReservationRow) (string, error) {
	c.calls.Add(1)
	c.rows.Store(int32(len(rows)))
	return "test.xlsx", nil
}

func newWorkerTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnqueueGoesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	w := NewExportWorker(newWorkerTestDB(t), &countingWorkbook{}, nil, client, RetryPolicy{}, &logger)

	require.NoError(t, w.EnqueueScheduleRefresh(context.Background()))
	require.NoError(t, w.EnqueueReservation(context.Background(), &models.Reservation{ID: 1}))

	raw, err := client.LRange(context.Background(), w.queueKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 2)

	var task ExportTask
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &task))
	assert.Equal(t, TaskWorkbookRefresh, task.Type)
}

func TestEnqueueFallsBackToMemoryQueue(t *testing.T) {
	logger := zerolog.Nop()
	w := NewExportWorker(newWorkerTestDB(t), &countingWorkbook{}, nil, nil, RetryPolicy{}, &logger)

	require.NoError(t, w.EnqueueScheduleRefresh(context.Background()))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, TaskScheduleRefresh, task.Type)
}

func TestProcessWorkbookRefresh(t *testing.T) {
	db := newWorkerTestDB(t)
	ctx := context.Background()

	property := &models.Property{
		Title: "Exported", Type: "house", Price: 1, Address: "x",
		Status: models.PropertyForSale, IsActive: true,
	}
	require.NoError(t, db.CreateProperty(ctx, property))
	user := &models.User{Email: "u@example.com", FullName: "U", IsActive: true}
	require.NoError(t, db.CreateUser(ctx, user))

	r := &models.Reservation{
		PropertyID: property.ID,
		UserID:     user.ID,
		Date:       time.Now().AddDate(0, 0, 1),
		TimeSlot:   "09:00",
	}
	require.NoError(t, db.CreateReservationWithLock(ctx, r))

	workbook := &countingWorkbook{}
	logger := zerolog.Nop()
	w := NewExportWorker(db, workbook, nil, nil, RetryPolicy{}, &logger)

	w.processTask(ctx, ExportTask{Type: TaskWorkbookRefresh})

	assert.EqualValues(t, 1, workbook.calls.Load())
	assert.EqualValues(t, 1, workbook.rows.Load())
}

func TestFailedTaskLandsInDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	w := NewExportWorker(newWorkerTestDB(t), &countingWorkbook{}, nil, client, RetryPolicy{MaxRetries: 2}, &logger)

	// A task already at its last attempt goes straight to the dead letter.
	w.retryOrDrop(context.Background(), ExportTask{Type: TaskWorkbookRefresh, Attempts: 1}, assert.AnError)

	raw, err := client.LRange(context.Background(), w.deadLetterKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var task ExportTask
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &task))
	assert.Equal(t, 2, task.Attempts)
}

func TestUnknownTaskTypeIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	w := NewExportWorker(newWorkerTestDB(t), &countingWorkbook{}, nil, client, RetryPolicy{}, &logger)

	w.processTask(context.Background(), ExportTask{Type: "bogus"})

	n, err := client.LLen(context.Background(), w.deadLetterKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
