package repo

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"time"

	perr "shillwatch/internal/platform/errors"
	"shillwatch/internal/services/parserexec/domain"
)

// EnqueueTask inserts a queued task record
func (r *queries) EnqueueTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(t.Payload.Map())
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "marshal task payload")
	}
	const sql = `
		INSERT INTO parser_tasks
		  (id, type, payload, priority, attempts, max_attempts, status,
		   account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, 'queued', $6, $7, $7)
	`
	_, err = r.q.Exec(ctx, sql,
		t.ID, string(t.Type), payload, int(t.Priority), t.MaxAttempts,
		t.AccountID, t.CreatedAt.UTC(),
	)
	if perr.IsDuplicateKey(err) {
		return perr.Conflictf("task %s already enqueued", t.ID)
	}
	if err != nil {
		return perr.FromPostgresf(err, "enqueue task %s", t.ID)
	}
	return nil
}

// LeaseNextTask CAS-transitions the best queued candidate to running.
// Priority desc, then created_at asc; SKIP LOCKED keeps concurrent
// workers from double-leasing. No slot is chosen here; the instance is
// stamped post-selection via MarkTaskRunningSlot
func (r *queries) LeaseNextTask(ctx context.Context, now time.Time) (domain.Task, bool, error) {
	const sql = `
		WITH cte AS (
			SELECT id
			FROM parser_tasks
			WHERE status = 'queued'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE parser_tasks t
		SET status = 'running', started_at = $1, updated_at = $1
		FROM cte
		WHERE t.id = cte.id
		RETURNING t.id, t.type, t.payload, t.priority, t.attempts,
		          t.max_attempts, t.account_id, t.created_at
	`
	var (
		task domain.Task
		typ  string
		raw  []byte
		prio int
	)
	err := r.q.QueryRow(ctx, sql, now.UTC()).Scan(
		&task.ID, &typ, &raw, &prio, &task.Attempts,
		&task.MaxAttempts, &task.AccountID, &task.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return domain.Task{}, false, nil
		}
		return domain.Task{}, false, err
	}

	task.Type = domain.TaskType(typ)
	task.Priority = domain.Priority(prio)
	task.Status = domain.StatusRunning
	started := now.UTC()
	task.StartedAt = &started

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Task{}, false, perr.Wrap(err, perr.ErrorCodeJSON, "unmarshal task payload")
	}
	p, err := domain.PayloadFromMap(task.Type, m)
	if err != nil {
		return domain.Task{}, false, perr.Wrap(err, perr.ErrorCodeJSON, "rebuild task payload")
	}
	task.Payload = p
	return task, true, nil
}

// MarkTaskRunningSlot stamps the slot chosen after selection
func (r *queries) MarkTaskRunningSlot(ctx context.Context, taskID, slotID string, now time.Time) error {
	const sql = `
		UPDATE parser_tasks
		SET instance_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`
	_, err := r.q.Exec(ctx, sql, taskID, slotID, now.UTC())
	return err
}

// CompleteTask marks a task done and stores its result
func (r *queries) CompleteTask(ctx context.Context, taskID string, res domain.Result, now time.Time) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "marshal task result")
	}
	const sql = `
		UPDATE parser_tasks
		SET status = 'done', result = $2, error = NULL, error_code = NULL,
		    completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`
	tag, err := r.q.Exec(ctx, sql, taskID, raw, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("task %s not running", taskID)
	}
	return nil
}

// RequeueTask reverts a failed attempt to queued with startedAt cleared
func (r *queries) RequeueTask(
	ctx context.Context, taskID string, attempts int, errMsg string, code domain.Code, now time.Time,
) error {
	const sql = `
		UPDATE parser_tasks
		SET status = 'queued', attempts = $2, error = $3, error_code = $4,
		    started_at = NULL, instance_id = NULL, updated_at = $5
		WHERE id = $1 AND status = 'running'
	`
	_, err := r.q.Exec(ctx, sql, taskID, attempts, errMsg, string(code), now.UTC())
	return err
}

// FailTask marks a task terminally failed
func (r *queries) FailTask(
	ctx context.Context, taskID string, attempts int, errMsg string, code domain.Code, now time.Time,
) error {
	const sql = `
		UPDATE parser_tasks
		SET status = 'failed', attempts = $2, error = $3, error_code = $4,
		    completed_at = $5, updated_at = $5
		WHERE id = $1 AND status = 'running'
	`
	_, err := r.q.Exec(ctx, sql, taskID, attempts, errMsg, string(code), now.UTC())
	return err
}

// GetTask returns a task by id
func (r *queries) GetTask(ctx context.Context, taskID string) (domain.Task, bool, error) {
	const sql = `
		SELECT id, type, payload, priority, attempts, max_attempts, status,
		       account_id, COALESCE(instance_id,''),
		       created_at, updated_at, started_at, completed_at,
		       result, COALESCE(error,''), COALESCE(error_code,'')
		FROM parser_tasks
		WHERE id = $1
	`
	var (
		t          domain.Task
		typ, st    string
		prio       int
		rawPayload []byte
		rawResult  []byte
		code       string
	)
	err := r.q.QueryRow(ctx, sql, taskID).Scan(
		&t.ID, &typ, &rawPayload, &prio, &t.Attempts, &t.MaxAttempts, &st,
		&t.AccountID, &t.InstanceID,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
		&rawResult, &t.Error, &code,
	)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return domain.Task{}, false, nil
		}
		return domain.Task{}, false, err
	}

	t.Type = domain.TaskType(typ)
	t.Status = domain.TaskStatus(st)
	t.Priority = domain.Priority(prio)
	t.ErrorCode = domain.Code(code)

	var m map[string]any
	if err := json.Unmarshal(rawPayload, &m); err == nil {
		if p, perr2 := domain.PayloadFromMap(t.Type, m); perr2 == nil {
			t.Payload = p
		}
	}
	if len(rawResult) > 0 {
		var res domain.Result
		if err := json.Unmarshal(rawResult, &res); err == nil {
			t.Result = &res
		}
	}
	return t, true, nil
}
