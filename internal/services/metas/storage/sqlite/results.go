package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/storage"
	"github.com/louisbranch/metas/internal/services/metas/storage/filter"
)

const resultColumns = `id, goal_id, window_id, value, observation, evidence_confirmed, evidence_json, status,
	submitted_by, submitted_at, edited_by, edited_at, reviewed_by, reviewed_at, review_comment,
	rejection_reason, reopened, created_at, updated_at`

// resultFilterColumns maps filter fields onto the results table.
var resultFilterColumns = map[string]string{
	filter.FieldGoalID:      "goal_id",
	filter.FieldWindowID:    "window_id",
	filter.FieldStatus:      "status",
	filter.FieldSubmittedBy: "submitted_by",
	filter.FieldReviewedBy:  "reviewed_by",
	filter.FieldCreateTime:  "created_at",
	filter.FieldUpdateTime:  "updated_at",
}

type evidenceRecord struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Size       int64  `json:"size"`
	UploadedBy string `json:"uploaded_by"`
	UploadedAt int64  `json:"uploaded_at"`
}

func encodeEvidence(files []result.EvidenceFile) (string, error) {
	records := make([]evidenceRecord, 0, len(files))
	for _, f := range files {
		records = append(records, evidenceRecord{
			Name:       f.Name,
			URL:        f.URL,
			Size:       f.Size,
			UploadedBy: f.UploadedBy,
			UploadedAt: toMillis(f.UploadedAt),
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	return string(data), nil
}

func decodeEvidence(raw string) ([]result.EvidenceFile, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var records []evidenceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	files := make([]result.EvidenceFile, 0, len(records))
	for _, r := range records {
		files = append(files, result.EvidenceFile{
			Name:       r.Name,
			URL:        r.URL,
			Size:       r.Size,
			UploadedBy: r.UploadedBy,
			UploadedAt: fromMillis(r.UploadedAt),
		})
	}
	return files, nil
}

func resultArgs(r result.Result) ([]any, error) {
	evidence, err := encodeEvidence(r.Evidence)
	if err != nil {
		return nil, err
	}
	return []any{
		r.Value,
		r.Observation,
		boolToInt(r.EvidenceConfirmed),
		evidence,
		string(r.Status),
		r.SubmittedBy,
		toMillis(r.SubmittedAt),
		r.EditedBy,
		toNullMillis(r.EditedAt),
		r.ReviewedBy,
		toNullMillis(r.ReviewedAt),
		r.ReviewComment,
		r.RejectionReason,
		boolToInt(r.Reopened),
		toMillis(r.UpdatedAt),
	}, nil
}

// CreateResult inserts the entry for a (goal, window) slot.
func (s *Store) CreateResult(ctx context.Context, r result.Result) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("result id is required")
	}
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	args = append([]any{r.ID, r.GoalID, r.WindowID}, args...)
	args = append(args, toMillis(r.CreatedAt))

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO results (
		   id, goal_id, window_id,
		   value, observation, evidence_confirmed, evidence_json, status,
		   submitted_by, submitted_at, edited_by, edited_at, reviewed_by, reviewed_at,
		   review_comment, rejection_reason, reopened, updated_at,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

// CompareAndSwapResult replaces r while its stored status still equals
// expected.
func (s *Store) CompareAndSwapResult(ctx context.Context, r result.Result, expected result.Status) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	args = append(args, r.ID, string(expected))

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE results
		    SET value = ?, observation = ?, evidence_confirmed = ?, evidence_json = ?, status = ?,
		        submitted_by = ?, submitted_at = ?, edited_by = ?, edited_at = ?,
		        reviewed_by = ?, reviewed_at = ?, review_comment = ?, rejection_reason = ?,
		        reopened = ?, updated_at = ?
		  WHERE id = ? AND status = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var found int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM results WHERE id = ?`, r.ID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return storage.ErrPreconditionFailed
}

// ReviewResult writes only the review columns of r while the stored status
// still equals expected, and returns the stored row. Content written by a
// concurrent amend is kept.
func (s *Store) ReviewResult(ctx context.Context, r result.Result, expected result.Status) (result.Result, error) {
	if err := s.ready(ctx); err != nil {
		return result.Result{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return result.Result{}, fmt.Errorf("begin review result: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE results
		    SET status = ?, reviewed_by = ?, reviewed_at = ?, review_comment = ?,
		        rejection_reason = ?, reopened = ?, updated_at = ?
		  WHERE id = ? AND status = ?`,
		string(r.Status),
		r.ReviewedBy,
		toNullMillis(r.ReviewedAt),
		r.ReviewComment,
		r.RejectionReason,
		boolToInt(r.Reopened),
		toMillis(r.UpdatedAt),
		r.ID,
		string(expected),
	)
	if err != nil {
		return result.Result{}, fmt.Errorf("review result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return result.Result{}, fmt.Errorf("review result: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, r.ID)
	stored, err := scanResult(row)
	if err != nil {
		return result.Result{}, notFound(err, "review result")
	}
	if affected == 0 {
		return result.Result{}, storage.ErrPreconditionFailed
	}
	if err := tx.Commit(); err != nil {
		return result.Result{}, fmt.Errorf("commit review result: %w", err)
	}
	return stored, nil
}

// GetResult returns one result by id.
func (s *Store) GetResult(ctx context.Context, resultID string) (result.Result, error) {
	if err := s.ready(ctx); err != nil {
		return result.Result{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, resultID)
	r, err := scanResult(row)
	if err != nil {
		return result.Result{}, notFound(err, "get result")
	}
	return r, nil
}

// GetResultBySlot returns the entry for (goalID, windowID).
func (s *Store) GetResultBySlot(ctx context.Context, goalID, windowID string) (result.Result, error) {
	if err := s.ready(ctx); err != nil {
		return result.Result{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+resultColumns+` FROM results WHERE goal_id = ? AND window_id = ?`,
		goalID,
		windowID,
	)
	r, err := scanResult(row)
	if err != nil {
		return result.Result{}, notFound(err, "get result by slot")
	}
	return r, nil
}

// ListResults returns one page of results ordered by creation time. The
// page token is the id of the last result of the previous page.
func (s *Store) ListResults(ctx context.Context, query storage.ResultQuery) (storage.ResultPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResultPage{}, err
	}
	if query.PageSize <= 0 {
		return storage.ResultPage{}, fmt.Errorf("page size must be greater than zero")
	}

	where := []string{"1 = 1"}
	var params []any
	rendered, err := query.Filter.SQL(resultFilterColumns)
	if err != nil {
		return storage.ResultPage{}, err
	}
	if rendered.Clause != "" {
		where = append(where, rendered.Clause)
		params = append(params, rendered.Params...)
	}

	pageToken := strings.TrimSpace(query.PageToken)
	if pageToken != "" {
		var cursor int64
		err := s.sqlDB.QueryRowContext(ctx, `SELECT created_at FROM results WHERE id = ?`, pageToken).Scan(&cursor)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ResultPage{}, storage.ErrInvalidPageToken
		}
		if err != nil {
			return storage.ResultPage{}, fmt.Errorf("list results: %w", err)
		}
		where = append(where, "(created_at > ? OR (created_at = ? AND id > ?))")
		params = append(params, cursor, cursor, pageToken)
	}
	params = append(params, query.PageSize+1)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+resultColumns+`
		   FROM results
		  WHERE `+strings.Join(where, " AND ")+`
		  ORDER BY created_at, id
		  LIMIT ?`,
		params...,
	)
	if err != nil {
		return storage.ResultPage{}, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	page := storage.ResultPage{Results: make([]result.Result, 0, query.PageSize)}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return storage.ResultPage{}, fmt.Errorf("list results: %w", err)
		}
		page.Results = append(page.Results, r)
	}
	if err := rows.Err(); err != nil {
		return storage.ResultPage{}, fmt.Errorf("list results: %w", err)
	}
	if len(page.Results) > query.PageSize {
		page.NextPageToken = page.Results[query.PageSize-1].ID
		page.Results = page.Results[:query.PageSize]
	}
	return page, nil
}

// ListResultsForGoals returns every result recorded against goalIDs.
func (s *Store) ListResultsForGoals(ctx context.Context, goalIDs []string) ([]result.Result, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(goalIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(goalIDs))
	params := make([]any, len(goalIDs))
	for i, goalID := range goalIDs {
		placeholders[i] = "?"
		params[i] = goalID
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+resultColumns+`
		   FROM results
		  WHERE goal_id IN (`+strings.Join(placeholders, ", ")+`)
		  ORDER BY created_at, id`,
		params...,
	)
	if err != nil {
		return nil, fmt.Errorf("list results for goals: %w", err)
	}
	defer rows.Close()

	var results []result.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("list results for goals: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results for goals: %w", err)
	}
	return results, nil
}

func scanResult(row scanner) (result.Result, error) {
	var r result.Result
	var status, evidence string
	var confirmed, reopened int
	var submittedAt, createdAt, updatedAt int64
	var editedAt, reviewedAt sql.NullInt64
	if err := row.Scan(
		&r.ID,
		&r.GoalID,
		&r.WindowID,
		&r.Value,
		&r.Observation,
		&confirmed,
		&evidence,
		&status,
		&r.SubmittedBy,
		&submittedAt,
		&r.EditedBy,
		&editedAt,
		&r.ReviewedBy,
		&reviewedAt,
		&r.ReviewComment,
		&r.RejectionReason,
		&reopened,
		&createdAt,
		&updatedAt,
	); err != nil {
		return result.Result{}, err
	}
	files, err := decodeEvidence(evidence)
	if err != nil {
		return result.Result{}, err
	}
	r.Evidence = files
	r.Status = result.Status(status)
	r.EvidenceConfirmed = confirmed != 0
	r.Reopened = reopened != 0
	r.SubmittedAt = fromMillis(submittedAt)
	r.EditedAt = fromNullMillis(editedAt)
	r.ReviewedAt = fromNullMillis(reviewedAt)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}
