package mysql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

func scanJob(row interface {
	Scan(dest ...any) error
}) (*model.Job, error) {
	var j model.Job
	var jsonStr, note sql.NullString
	var dependsOn sql.NullInt64
	var repeatAfterSec sql.NullInt64
	var status string
	if err := row.Scan(&j.ID, &j.Action, &j.Catalog, &jsonStr, &dependsOn, &status, &j.LastTS, &note, &repeatAfterSec, &j.NextTS, &j.UserID); err != nil {
		return nil, err
	}
	j.Status = model.ParseJobStatus(status)
	if jsonStr.Valid {
		v := jsonStr.String
		j.JSON = &v
	}
	if dependsOn.Valid {
		v := dependsOn.Int64
		j.DependsOn = &v
	}
	if note.Valid {
		v := note.String
		j.Note = &v
	}
	if repeatAfterSec.Valid {
		v := int(repeatAfterSec.Int64)
		j.RepeatAfterSec = &v
	}
	return &j, nil
}

const jobSelectColumns = "`id`,`action`,`catalog`,`json`,`depends_on`,`status`,`last_ts`,`note`,`repeat_after_sec`,`next_ts`,`user_id`"

func (s *Store) GetJob(ctx context.Context, jobID int64) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobSelectColumns+" FROM `jobs` WHERE `id`=?", jobID)
	j, err := scanJob(row)
	if err != nil {
		return nil, wrap("get job", err)
	}
	return j, nil
}

// QueueSimpleJob upserts a job for (catalog, action), resetting it to TODO
// if it already exists. Grounded on job.rs::queue_simple_job's
// INSERT ... ON DUPLICATE KEY UPDATE, which relies on a unique
// (catalog, action) key so re-queueing an existing job cannot create
// duplicates.
func (s *Store) QueueSimpleJob(ctx context.Context, catalogID int64, action string, dependsOn *int64) (int64, error) {
	timestamp := model.Now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO `jobs` (`catalog`,`action`,`status`,`depends_on`,`last_ts`) VALUES (?,?,?,?,?) "+
			"ON DUPLICATE KEY UPDATE `status`=?,`depends_on`=?,`last_ts`=?",
		catalogID, action, string(model.StatusTodo), dependsOn, timestamp,
		string(model.StatusTodo), dependsOn, timestamp)
	if err != nil {
		return 0, wrap("queue simple job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("queue simple job: last insert id", err)
	}
	return id, nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE `jobs` SET `status`=?,`last_ts`=?,`note`=NULL WHERE `id`=?",
		string(status), model.Now(), jobID)
	return wrap("set job status", err)
}

func (s *Store) SetJobNote(ctx context.Context, jobID int64, note string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE `jobs` SET `note`=? WHERE `id`=?", model.TruncateNote(note), jobID)
	return wrap("set job note", err)
}

func (s *Store) SetJobJSON(ctx context.Context, jobID int64, json *string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE `jobs` SET `json`=? WHERE `id`=?", json, jobID)
	return wrap("set job json", err)
}

func (s *Store) UpdateJobNextTS(ctx context.Context, jobID int64, nextTS string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE `jobs` SET `next_ts`=? WHERE `id`=?", nextTS, jobID)
	return wrap("update job next ts", err)
}

func (s *Store) ResetRunningJobs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE `jobs` SET `status`=? WHERE `status`=?", string(model.StatusTodo), string(model.StatusRunning))
	return wrap("reset running jobs", err)
}

func (s *Store) ResetFailedJobs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE `jobs` SET `status`=? WHERE `status`=?", string(model.StatusTodo), string(model.StatusFailed))
	return wrap("reset failed jobs", err)
}

// GetNextJobID runs one tier of the job-selection cascade described in
// storage.JobSelector. Grounded directly on job.rs's
// get_next_high_priority_job / get_next_dependent_job /
// get_next_initial_allowed_job / get_next_initial_job /
// get_next_low_priority_job / get_next_scheduled_job, which jobqueue.Next
// calls in that order to implement the full six-tier cascade
// (job.rs::get_next_job_id).
func (s *Store) GetNextJobID(ctx context.Context, sel storage.JobSelector) (int64, error) {
	var b strings.Builder
	b.WriteString("SELECT `id` FROM `jobs` WHERE `status`=?")
	args := []any{string(sel.Status)}

	switch {
	case sel.DependsOnDone:
		b.WriteString(" AND `depends_on` IS NOT NULL AND `depends_on` IN (SELECT `id` FROM `jobs` WHERE `status`=?)")
		args = append(args, string(sel.DependsOnStatus))
	case sel.NextTSBefore != "":
		b.WriteString(" AND `next_ts`!='' AND `next_ts`<=?")
		args = append(args, sel.NextTSBefore)
	case sel.RequireNoDependsOn:
		b.WriteString(" AND `depends_on` IS NULL")
	}

	if len(sel.ExcludeActions) > 0 {
		placeholders := strings.Repeat("?,", len(sel.ExcludeActions))
		placeholders = placeholders[:len(placeholders)-1]
		b.WriteString(" AND `action` NOT IN (" + placeholders + ")")
		for _, a := range sel.ExcludeActions {
			args = append(args, a)
		}
	}

	if sel.NextTSBefore != "" {
		b.WriteString(" ORDER BY `next_ts` LIMIT 1")
	} else {
		b.WriteString(" ORDER BY `last_ts` LIMIT 1")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("get next job id", err)
	}
	return id, nil
}
