// Package services – IdempotencyCoordinator
//
// This file implements the coordinator that wraps every financial mutation
// in a dedupe-and-lock protocol: a deterministic key derived from the
// operation's parameters identifies the logical intent, a completed record
// replays its cached result without re-running the operation, a live lock
// rejects concurrent duplicates, and failed or lock-expired records may be
// reclaimed so a crashed worker never blocks retries forever.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// Default protocol windows. LockDuration bounds how long a crashed worker
// can block retries; RecordTTL bounds how long completed results replay;
// TimeBucket coarsens the event time inside the key so rapid duplicate
// submissions of the same intent collide while later legitimate repeats do
// not.
const (
	DefaultLockDuration = 30 * time.Second
	DefaultRecordTTL    = 24 * time.Hour
	DefaultTimeBucket   = 5 * time.Minute
)

// IdempotencyCoordinator guards financial mutations against duplicate
// execution. Safe for concurrent use.
type IdempotencyCoordinator struct {
	// DB is the GORM handle used for the record table and for the wrapped
	// operation's transaction.
	DB *gorm.DB

	LockDuration time.Duration
	RecordTTL    time.Duration
	TimeBucket   time.Duration
}

// NewIdempotencyCoordinator constructs a coordinator with default windows.
func NewIdempotencyCoordinator(db *gorm.DB) *IdempotencyCoordinator {
	return &IdempotencyCoordinator{
		DB:           db,
		LockDuration: DefaultLockDuration,
		RecordTTL:    DefaultRecordTTL,
		TimeBucket:   DefaultTimeBucket,
	}
}

func (c *IdempotencyCoordinator) lockDuration() time.Duration {
	if c.LockDuration <= 0 {
		return DefaultLockDuration
	}
	return c.LockDuration
}

func (c *IdempotencyCoordinator) recordTTL() time.Duration {
	if c.RecordTTL <= 0 {
		return DefaultRecordTTL
	}
	return c.RecordTTL
}

// DeriveKey builds the deterministic idempotency key for an operation:
// sha256 over member id, operation type, the canonical parameters, and the
// event time floored to the coordinator's bucket. Each part is
// length-prefixed before hashing so part boundaries are unambiguous:
// ["a|b"] and ["a","b"] derive different keys.
func (c *IdempotencyCoordinator) DeriveKey(memberID, opType string, params []string, at time.Time) string {
	bucket := c.TimeBucket
	if bucket <= 0 {
		bucket = DefaultTimeBucket
	}
	parts := make([]string, 0, len(params)+3)
	parts = append(parts, memberID, opType)
	parts = append(parts, params...)
	parts = append(parts, at.UTC().Truncate(bucket).Format(time.RFC3339))

	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Execute runs fn at most once per key within the dedupe window.
//
// The returned payload is the JSON encoding of fn's result; replayed is
// true when the payload came from a previously completed record and fn was
// not run. A concurrent duplicate fails with ErrConcurrentOperation. When
// fn fails, the record is marked failed (retryable after the lock expires)
// and fn's error is propagated unchanged.
func (c *IdempotencyCoordinator) Execute(ctx context.Context, key string, fn func(tx *gorm.DB) (any, error)) (payload []byte, replayed bool, err error) {
	tr := otel.Tracer("services/IdempotencyCoordinator")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(attribute.String("idempotency.key", key)),
	)
	defer span.End()

	now := time.Now().UTC()

	// Fast path: a completed, unexpired record replays its payload.
	if rec, err := repo.GetIdempotency(ctx, c.DB, key, now); err == nil &&
		rec.State == domain.IdempotencyStateCompleted {
		span.SetAttributes(attribute.Bool("replayed", true))
		return []byte(rec.ResultPayload), true, nil
	}

	owner := uuid.NewString()
	_, err = repo.ClaimIdempotency(ctx, c.DB, key, owner, c.lockDuration(), c.recordTTL(), now)
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the race. Either someone finished in the meantime (replay
		// their result) or they still hold the lock.
		if rec, gerr := repo.GetIdempotency(ctx, c.DB, key, now); gerr == nil &&
			rec.State == domain.IdempotencyStateCompleted {
			span.SetAttributes(attribute.Bool("replayed", true))
			return []byte(rec.ResultPayload), true, nil
		}
		return nil, false, ErrConcurrentOperation
	}
	if err != nil {
		return nil, false, err
	}

	var result any
	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, ferr := fn(tx)
		if ferr != nil {
			return ferr
		}
		result = r
		return nil
	})
	if err != nil {
		if ferr := repo.FailIdempotency(ctx, c.DB, key, owner); ferr != nil {
			return nil, false, errors.Join(err, ferr)
		}
		return nil, false, err
	}

	payload, err = json.Marshal(result)
	if err != nil {
		// The operation committed; a marshalling failure must not lose that
		// fact, so the record still completes with an empty payload.
		payload = []byte("null")
	}
	if cerr := repo.CompleteIdempotency(ctx, c.DB, key, owner, string(payload), time.Now().UTC().Add(c.recordTTL())); cerr != nil {
		return nil, false, cerr
	}
	return payload, false, nil
}

// PurgeExpired removes idempotency records past their retention window.
func (c *IdempotencyCoordinator) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, c.DB, time.Now().UTC())
}
