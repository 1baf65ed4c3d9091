package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"estateadmin/internal/database"
	"estateadmin/internal/domain"
	"estateadmin/internal/export"
	"estateadmin/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskWorkbookRefresh = "workbook_refresh"
	TaskScheduleRefresh = "schedule_refresh"
)

// ExportTask is a unit of export work. Tasks are idempotent full refreshes,
// so replaying one after a crash is harmless.
type ExportTask struct {
	Type      string    `json:"type"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkbookWriter renders the reservation log to a file.
type WorkbookWriter interface {
	WriteReservationsWorkbook(ctx context.Context, rows []export.ReservationRow) (string, error)
}

// ExportWorker consumes export tasks and refreshes the XLSX workbook and the
// external schedule sheet. Redis carries the queue when available; an
// in-memory channel takes over otherwise.
type ExportWorker struct {
	db            *database.DB
	workbook      WorkbookWriter
	schedule      domain.ScheduleWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan ExportTask
	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewExportWorker(db *database.DB, workbook WorkbookWriter, schedule domain.ScheduleWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ExportWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &ExportWorker{
		db:            db,
		workbook:      workbook,
		schedule:      schedule,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan ExportTask, 128),
		queueKey:      "exports:queue",
		deadLetterKey: "exports:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// EnqueueReservation schedules a workbook refresh after a reservation change.
// The refresh is a full rebuild, so the reservation itself is not carried.
func (w *ExportWorker) EnqueueReservation(ctx context.Context, _ *models.Reservation) error {
	return w.enqueue(ctx, ExportTask{Type: TaskWorkbookRefresh, CreatedAt: time.Now()})
}

func (w *ExportWorker) EnqueueScheduleRefresh(ctx context.Context) error {
	return w.enqueue(ctx, ExportTask{Type: TaskScheduleRefresh, CreatedAt: time.Now()})
}

func (w *ExportWorker) enqueue(ctx context.Context, task ExportTask) error {
	if w.redis != nil {
		err := w.pushRedis(ctx, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Str("type", task.Type).Msg("export queue full, task dropped")
	}
	return nil
}

// Start runs the consume loop until ctx is done.
func (w *ExportWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("export worker started")
	defer w.logger.Info().Msg("export worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if task, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, task)
			continue
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *ExportWorker) tryLocalQueue() (ExportTask, bool) {
	select {
	case task := <-w.queue:
		return task, true
	default:
		return ExportTask{}, false
	}
}

func (w *ExportWorker) tryRedis(ctx context.Context) (ExportTask, bool) {
	if w.redis == nil {
		return ExportTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
		}
		return ExportTask{}, false
	}
	if len(res) != 2 {
		return ExportTask{}, false
	}

	var task ExportTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return ExportTask{}, false
	}
	return task, true
}

func (w *ExportWorker) processTask(ctx context.Context, task ExportTask) {
	var err error
	switch task.Type {
	case TaskWorkbookRefresh:
		err = w.refreshWorkbook(ctx)
	case TaskScheduleRefresh:
		err = w.refreshSchedule(ctx)
	default:
		w.logger.Error().Str("type", task.Type).Msg("unknown export task type")
		return
	}

	if err != nil {
		w.retryOrDrop(ctx, task, err)
	}
}

func (w *ExportWorker) refreshWorkbook(ctx context.Context) error {
	if w.workbook == nil {
		return nil
	}

	reservations, err := w.db.ListReservations(ctx, models.ReservationFilter{})
	if err != nil {
		return err
	}

	propertyTitles := make(map[int64]string)
	userNames := make(map[int64]*models.User)

	rows := make([]export.ReservationRow, 0, len(reservations))
	for _, r := range reservations {
		title, ok := propertyTitles[r.PropertyID]
		if !ok {
			if p, err := w.db.GetProperty(ctx, r.PropertyID); err == nil {
				title = p.Title
			}
			propertyTitles[r.PropertyID] = title
		}

		user, ok := userNames[r.UserID]
		if !ok {
			user, _ = w.db.GetUser(ctx, r.UserID)
			userNames[r.UserID] = user
		}

		row := export.ReservationRow{Reservation: r, PropertyTitle: title}
		if user != nil {
			row.UserName = user.FullName
			row.UserEmail = user.Email
		}
		rows = append(rows, row)
	}

	_, err = w.workbook.WriteReservationsWorkbook(ctx, rows)
	return err
}

func (w *ExportWorker) refreshSchedule(ctx context.Context) error {
	if w.schedule == nil {
		return nil
	}

	reservations, err := w.db.ListReservations(ctx, models.ReservationFilter{
		DateFrom: time.Now(),
	})
	if err != nil {
		return err
	}

	daily := make(map[string][]*models.Reservation)
	for _, r := range reservations {
		if r.Status != models.StatusPending && r.Status != models.StatusAccepted {
			continue
		}
		key := r.Date.Format("2006-01-02")
		daily[key] = append(daily[key], r)
	}

	return w.schedule.UpdateScheduleSheet(ctx, daily)
}

func (w *ExportWorker) retryOrDrop(ctx context.Context, task ExportTask, cause error) {
	task.Attempts++
	if task.Attempts >= w.retryPolicy.MaxRetries {
		w.logger.Error().Err(cause).Str("type", task.Type).Int("attempts", task.Attempts).
			Msg("export task failed permanently")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempts)
	w.logger.Warn().Err(cause).Str("type", task.Type).Int("attempt", task.Attempts).
		Dur("retry_in", delay).Msg("export task failed, will retry")

	retried := task
	time.AfterFunc(delay, func() {
		select {
		case w.queue <- retried:
		default:
			w.logger.Warn().Str("type", retried.Type).Msg("export queue full, retry dropped")
		}
	})
}

func (w *ExportWorker) pushRedis(ctx context.Context, task ExportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.queueKey, data).Err()
}

func (w *ExportWorker) pushDeadLetter(ctx context.Context, task ExportTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode deadletter task")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("deadletter push failed")
	}
}
