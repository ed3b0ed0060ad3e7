package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/w2-reporter/internal/entity"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SubmissionFilter narrows List. Zero values mean no restriction.
type SubmissionFilter struct {
	State string
	Since time.Time
	Limit int
}

type SubmissionRepository interface {
	Record(ctx context.Context, rec entity.SubmissionRecord) error
	Get(ctx context.Context, id uuid.UUID) (entity.SubmissionRecord, error)
	List(ctx context.Context, f SubmissionFilter) ([]entity.SubmissionRecord, error)
	// LatestByDocument returns the newest record for a document hash.
	LatestByDocument(ctx context.Context, sha256 string) (entity.SubmissionRecord, error)
}

type submissionRepo struct {
	db  *DB
	log *slog.Logger
}

func NewSubmissionRepository(db *DB, log *slog.Logger) SubmissionRepository {
	if log == nil {
		log = slog.Default()
	}
	return &submissionRepo{db: db, log: log}
}

var submissionColumns = []string{
	"id", "document_sha256", "filename", "state",
	"report_id", "file_id", "error_code", "error_message", "created_at",
}

// Record appends one outcome. Records are never updated.
func (r *submissionRepo) Record(ctx context.Context, rec entity.SubmissionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	q, args := r.db.builder().Insert(submissionsTable().Name).
		Columns(submissionColumns...).
		Values(
			rec.ID.String(),
			rec.DocumentSHA256,
			rec.Filename,
			rec.State,
			nullable(rec.ReportID),
			nullable(rec.FileID),
			nullable(rec.ErrorCode),
			nullable(rec.ErrorMessage),
			rec.CreatedAt.UTC(),
		).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("submission record failed", "id", rec.ID, "state", rec.State, "err", err)
		return fmt.Errorf("insert submission: %w", err)
	}
	r.log.Debug("submission recorded", "id", rec.ID, "state", rec.State)
	return nil
}

func (r *submissionRepo) selectSubmissions() *entsql.Selector {
	return r.db.builder().Select(submissionColumns...).
		From(entsql.Table(submissionsTable().Name)).
		OrderBy(entsql.Desc("created_at"), "id")
}

func (r *submissionRepo) Get(ctx context.Context, id uuid.UUID) (entity.SubmissionRecord, error) {
	return r.one(ctx, r.selectSubmissions().Where(entsql.EQ("id", id.String())))
}

func (r *submissionRepo) LatestByDocument(ctx context.Context, sha256 string) (entity.SubmissionRecord, error) {
	return r.one(ctx, r.selectSubmissions().Where(entsql.EQ("document_sha256", sha256)))
}

// List returns records newest first.
func (r *submissionRepo) List(ctx context.Context, f SubmissionFilter) ([]entity.SubmissionRecord, error) {
	sel := r.selectSubmissions()
	if f.State != "" {
		sel.Where(entsql.EQ("state", f.State))
	}
	if !f.Since.IsZero() {
		sel.Where(entsql.GTE("created_at", f.Since.UTC()))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	out, err := r.query(ctx, sel)
	if err != nil {
		r.log.Error("submission list failed", "state", f.State, "err", err)
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

func (r *submissionRepo) one(ctx context.Context, sel *entsql.Selector) (entity.SubmissionRecord, error) {
	recs, err := r.query(ctx, sel.Limit(1))
	if err != nil {
		return entity.SubmissionRecord{}, err
	}
	if len(recs) == 0 {
		return entity.SubmissionRecord{}, ErrNotFound
	}
	return recs[0], nil
}

func (r *submissionRepo) query(ctx context.Context, sel *entsql.Selector) ([]entity.SubmissionRecord, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []entity.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s scanner) (entity.SubmissionRecord, error) {
	var (
		rec                         entity.SubmissionRecord
		id                          string
		reportID, fileID, code, msg sql.NullString
	)
	if err := s.Scan(&id, &rec.DocumentSHA256, &rec.Filename, &rec.State, &reportID, &fileID, &code, &msg, &rec.CreatedAt); err != nil {
		return entity.SubmissionRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return entity.SubmissionRecord{}, fmt.Errorf("parse submission id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.ReportID = fromNull(reportID)
	rec.FileID = fromNull(fileID)
	rec.ErrorCode = fromNull(code)
	rec.ErrorMessage = fromNull(msg)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
