package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"registrar/internal/enrollment/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// RedisStore persists enrollment records as JSON values. Suited for
// deployments that already run Redis and do not need SQL durability.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // zero means no expiry
}

// NewRedis constructs a Redis-backed record store.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

type redisRecord struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	ModifiedAt string `json:"modified_at"`
}

func recordKey(recordID id.RecordID) string {
	return "registrar:record:" + recordID.String()
}

func (s *RedisStore) Find(ctx context.Context, recordID id.RecordID) (*models.EnrollmentRecord, error) {
	raw, err := s.client.Get(ctx, recordKey(recordID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "redis get")
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Create(ctx context.Context, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	payload, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, recordKey(record.ID), payload, s.ttl).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "redis setnx")
	}
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "record already exists")
	}
	return record.Clone(), nil
}

func (s *RedisStore) Update(ctx context.Context, recordID id.RecordID, record *models.EnrollmentRecord) (*models.EnrollmentRecord, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	stored := record.Clone()
	stored.ID = recordID
	payload, err := encodeRecord(stored)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetXX(ctx, recordKey(recordID), payload, s.ttl).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "redis setxx")
	}
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	return stored.Clone(), nil
}

func (s *RedisStore) Delete(ctx context.Context, recordID id.RecordID) error {
	n, err := s.client.Del(ctx, recordKey(recordID)).Result()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransient, "redis del")
	}
	if n == 0 {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "enrollment record not found")
	}
	return nil
}

func encodeRecord(record *models.EnrollmentRecord) (string, error) {
	payload, err := json.Marshal(redisRecord{
		ID:         record.ID.String(),
		StudentID:  record.StudentID.String(),
		CourseID:   record.CourseID.String(),
		Status:     string(record.Status),
		CreatedAt:  record.CreatedAt.Format(time.RFC3339Nano),
		ModifiedAt: record.ModifiedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodePermanent, "marshal enrollment record")
	}
	return string(payload), nil
}

func decodeRecord(raw string) (*models.EnrollmentRecord, error) {
	var rr redisRecord
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePermanent, "unmarshal enrollment record")
	}
	recordID, err := id.ParseRecordID(rr.ID)
	if err != nil {
		return nil, err
	}
	studentID, err := id.ParseStudentID(rr.StudentID)
	if err != nil {
		return nil, err
	}
	courseID, err := id.ParseCourseID(rr.CourseID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rr.CreatedAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePermanent, fmt.Sprintf("parse created_at %q", rr.CreatedAt))
	}
	modifiedAt, err := time.Parse(time.RFC3339Nano, rr.ModifiedAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePermanent, fmt.Sprintf("parse modified_at %q", rr.ModifiedAt))
	}
	return &models.EnrollmentRecord{
		ID:         recordID,
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     models.EnrollmentStatus(rr.Status),
		CreatedAt:  createdAt,
		ModifiedAt: modifiedAt,
	}, nil
}
