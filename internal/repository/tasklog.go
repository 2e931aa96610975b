package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hray3182/Timeline/internal/database"
	"github.com/hray3182/Timeline/internal/interval"
	"github.com/hray3182/Timeline/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const taskColumns = `task_id::text, user_id::text, title, date_interval, category, description,
	 completion, priority, is_recommend`

// TaskLogRepository is the remote store for calendar events. Rows live in
// task_log with the schedule packed into date_interval.
type TaskLogRepository struct {
	db     *database.DB
	logger *zap.Logger
}

func NewTaskLogRepository(db *database.DB, logger *zap.Logger) *TaskLogRepository {
	return &TaskLogRepository{db: db, logger: logger}
}

// taskRow mirrors the task_log columns read back into events
type taskRow struct {
	TaskID       string
	UserID       string
	Title        string
	DateInterval string
	Category     string
	Description  string
	Completion   bool
	Priority     string
	IsRecommend  bool
}

func (row *taskRow) toEvent() (models.Event, error) {
	start, end, err := interval.Decode(row.DateInterval)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to decode task %s: %w", row.TaskID, err)
	}
	return models.Event{
		ID:    row.TaskID,
		Title: row.Title,
		Start: start,
		End:   end,
		ExtendedProps: models.ExtendedProps{
			Description: row.Description,
			Category:    row.Category,
			Completion:  row.Completion,
			Priority:    row.Priority,
		},
		IsRecommend: row.IsRecommend,
	}, nil
}

// Insert writes one row owned by userID and returns the generated task_id.
func (r *TaskLogRepository) Insert(ctx context.Context, userID string, event *models.Event) (string, error) {
	if userID == "" {
		return "", models.ErrNoSession
	}

	end := event.End
	if end.IsZero() {
		end = event.Start
	}

	var taskID string
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO task_log (user_id, title, date_interval, event_creation_time, category,
		 description, completion, priority, is_recommend)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING task_id::text`,
		userID, event.Title, interval.Encode(event.Start, end), interval.CreationTime(event.Start),
		event.ExtendedProps.Category, event.ExtendedProps.Description, event.ExtendedProps.Completion,
		event.ExtendedProps.Priority, event.IsRecommend,
	).Scan(&taskID)
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}
	return taskID, nil
}

// FetchForUser returns every decodable row of the user. Rows whose interval
// cannot be decoded are skipped and logged. Order is unspecified.
func (r *TaskLogRepository) FetchForUser(ctx context.Context, userID string) ([]models.Event, error) {
	if userID == "" {
		return nil, models.ErrNoSession
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_log WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// Update writes the present fields of patch. Start and End must be given
// together since they share one column.
func (r *TaskLogRepository) Update(ctx context.Context, taskID, userID string, patch models.EventPatch) error {
	if userID == "" {
		return models.ErrNoSession
	}

	set, args, err := buildUpdate(patch)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, taskID, userID)
	query := fmt.Sprintf(`UPDATE task_log SET %s WHERE task_id = $%d AND user_id = $%d`,
		strings.Join(set, ", "), len(args)-1, len(args))

	if _, err := r.db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	return nil
}

func buildUpdate(patch models.EventPatch) ([]string, []any, error) {
	var set []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Start != nil || patch.End != nil {
		if patch.Start == nil || patch.End == nil {
			return nil, nil, errors.New("start and end must be updated together")
		}
		add("date_interval", interval.Encode(*patch.Start, *patch.End))
		add("event_creation_time", interval.CreationTime(*patch.Start))
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Completion != nil {
		add("completion", *patch.Completion)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.IsRecommend != nil {
		add("is_recommend", *patch.IsRecommend)
	}
	return set, args, nil
}

// Delete removes a row. The row filter includes user_id because this
// process connects with a service role and no row-level security applies.
func (r *TaskLogRepository) Delete(ctx context.Context, taskID, userID string) error {
	if userID == "" {
		return models.ErrNoSession
	}

	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM task_log WHERE task_id = $1 AND user_id = $2`,
		taskID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// SimilaritySearch returns the user's task nearest to taskID by embedding
// distance, or nil if there is none.
func (r *TaskLogRepository) SimilaritySearch(ctx context.Context, taskID, userID string) (*models.Event, error) {
	if userID == "" {
		return nil, models.ErrNoSession
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM find_similar_task($1::uuid, $2::uuid)`,
		taskID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar tasks: %w", err)
	}
	defer rows.Close()

	events, err := r.scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// SetEmbedding stores the vector of a task
func (r *TaskLogRepository) SetEmbedding(ctx context.Context, taskID string, vec []float32) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE task_log SET embedding = $1::real[]::vector WHERE task_id = $2`,
		vec, taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding for task %s: %w", taskID, err)
	}
	return nil
}

// MissingEmbeddings lists the user's tasks that still have no embedding
func (r *TaskLogRepository) MissingEmbeddings(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	if userID == "" {
		return nil, models.ErrNoSession
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM task_log WHERE user_id = $1 AND embedding IS NULL LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks without embedding: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

func (r *TaskLogRepository) scanEvents(rows pgx.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var row taskRow
		if err := rows.Scan(&row.TaskID, &row.UserID, &row.Title, &row.DateInterval, &row.Category,
			&row.Description, &row.Completion, &row.Priority, &row.IsRecommend); err != nil {
			return nil, err
		}
		event, err := row.toEvent()
		if err != nil {
			r.logger.Warn("Skipping undecodable task", zap.String("task_id", row.TaskID), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
