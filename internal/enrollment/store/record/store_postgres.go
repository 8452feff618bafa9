package record

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// PostgresStore persists enrollment records in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE enrollment_records (
//	    id          UUID PRIMARY KEY,
//	    student_id  UUID NOT NULL,
//	    course_id   UUID NOT NULL,
//	    status      TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    modified_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, recordID id.RecordID) (*models.EnrollmentRecord, error) {
	query := `
		SELECT id, student_id, course_id, status, created_at, modified_at
		FROM enrollment_records
		WHERE id = $1
	`
	var (
		rec                     models.EnrollmentRecord
		rawID, rawStud, rawCrse uuid.UUID
		status                  string
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(recordID)).Scan(
		&rawID, &rawStud, &rawCrse, &status, &rec.CreatedAt, &rec.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	if err != nil {
		return nil, classify(err, "find enrollment record")
	}
	rec.ID = id.RecordID(rawID)
	rec.StudentID = id.StudentID(rawStud)
	rec.CourseID = id.CourseID(rawCrse)
	rec.Status = models.EnrollmentStatus(status)
	return &rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	query := `
		INSERT INTO enrollment_records (id, student_id, course_id, status, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.StudentID),
		uuid.UUID(record.CourseID),
		string(record.Status),
		record.CreatedAt,
		record.ModifiedAt,
	)
	if err != nil {
		return nil, classify(err, "insert enrollment record")
	}
	return record.Clone(), nil
}

func (s *PostgresStore) Update(ctx context.Context, recordID id.RecordID, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	query := `
		UPDATE enrollment_records
		SET student_id = $2, course_id = $3, status = $4, modified_at = $5
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(recordID),
		uuid.UUID(record.StudentID),
		uuid.UUID(record.CourseID),
		string(record.Status),
		record.ModifiedAt,
	)
	if err != nil {
		return nil, classify(err, "update enrollment record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	stored := record.Clone()
	stored.ID = recordID
	return stored, nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordID id.RecordID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrollment_records WHERE id = $1`, uuid.UUID(recordID))
	if err != nil {
		return classify(err, "delete enrollment record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	return nil
}

// List returns every stored record. Feeds replica sync; not part of the
// RecordStore contract.
func (s *PostgresStore) List(ctx context.Context) ([]*models.EnrollmentRecord, error) {
	query := `
		SELECT id, student_id, course_id, status, created_at, modified_at
		FROM enrollment_records
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, "list enrollment records")
	}
	defer rows.Close()

	var records []*models.EnrollmentRecord
	for rows.Next() {
		var (
			rec                     models.EnrollmentRecord
			rawID, rawStud, rawCrse uuid.UUID
			status                  string
		)
		if err := rows.Scan(&rawID, &rawStud, &rawCrse, &status, &rec.CreatedAt, &rec.ModifiedAt); err != nil {
			return nil, classify(err, "scan enrollment record")
		}
		rec.ID = id.RecordID(rawID)
		rec.StudentID = id.StudentID(rawStud)
		rec.CourseID = id.CourseID(rawCrse)
		rec.Status = models.EnrollmentStatus(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list enrollment records")
	}
	return records, nil
}

// classify maps database errors onto the retry taxonomy. Connection-class
// failures are transient; integrity violations and everything else the
// server rejected outright are permanent.
func classify(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection, insufficient resources, operator intervention
			return dErrors.Wrap(err, dErrors.CodeTransient, msg)
		case "23": // integrity constraint violation
			return dErrors.Wrap(err, dErrors.CodeConflict, msg)
		default:
			return dErrors.Wrap(err, dErrors.CodePermanent, msg)
		}
	}
	// Driver-level failures (dial errors, closed pools) are worth a retry.
	return dErrors.Wrap(err, dErrors.CodeTransient, msg)
}
