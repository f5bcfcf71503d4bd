package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/haloiam/core/pkg/eventstore"
	"gorm.io/gorm"
)

// checkpointRecord is the persisted row shape for one projection's
// progress. The (instance_id, name) pair is the primary key, so two
// projections with the same name in different instances never collide and
// a single instance can never run the same projection under two names.
type checkpointRecord struct {
	InstanceID     string `gorm:"primaryKey"`
	Name           string `gorm:"primaryKey"`
	Pos            int64
	InTxOrder      int
	Owner          string
	LeaseExpiresAt time.Time
	RetryCount     int
	LastError      string
	Failed         bool
}

func (checkpointRecord) TableName() string { return "projection_checkpoints" }

func (r checkpointRecord) toCheckpoint() Checkpoint {
	return Checkpoint{
		InstanceID:     r.InstanceID,
		Name:           r.Name,
		Position:       eventstore.Position{Pos: r.Pos, InTxOrder: r.InTxOrder},
		Owner:          r.Owner,
		LeaseExpiresAt: r.LeaseExpiresAt,
		RetryCount:     r.RetryCount,
		LastError:      r.LastError,
		Failed:         r.Failed,
	}
}

// GormCheckpointStore is the default CheckpointStore, backed by the same
// relational database as the read models a projection writes to. Because
// of that, it can also run a projector's apply step and its own lease
// renewal and position advance inside one transaction, via RunInTransaction
// — the combination the DynamoDB-backed store cannot offer.
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore builds a GormCheckpointStore, auto-migrating its
// table.
func NewGormCheckpointStore(db *gorm.DB) (*GormCheckpointStore, error) {
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("projection: migrating checkpoint schema: %w", err)
	}
	return &GormCheckpointStore{db: db}, nil
}

// Acquire implements CheckpointStore.
func (s *GormCheckpointStore) Acquire(ctx context.Context, instanceID, name, owner string, lease time.Duration) (Checkpoint, bool, error) {
	var cp Checkpoint
	var acquired bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cp, acquired, err = acquireLease(tx, instanceID, name, owner, lease)
		return err
	})
	return cp, acquired, err
}

// acquireLease does the CAS: create the row if missing, or claim it if
// unowned, already owned by owner, or its lease has lapsed.
func acquireLease(tx *gorm.DB, instanceID, name, owner string, lease time.Duration) (Checkpoint, bool, error) {
	var rec checkpointRecord
	err := tx.Where("instance_id = ? AND name = ?", instanceID, name).First(&rec).Error
	now := time.Now().UTC()
	if err == gorm.ErrRecordNotFound {
		rec = checkpointRecord{InstanceID: instanceID, Name: name, Owner: owner, LeaseExpiresAt: now.Add(lease)}
		if err := tx.Create(&rec).Error; err != nil {
			return Checkpoint{}, false, fmt.Errorf("creating checkpoint: %w", err)
		}
		return rec.toCheckpoint(), true, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("reading checkpoint: %w", err)
	}
	if rec.Failed {
		return rec.toCheckpoint(), false, nil
	}
	if rec.Owner != "" && rec.Owner != owner && rec.LeaseExpiresAt.After(now) {
		return rec.toCheckpoint(), false, nil
	}

	rec.Owner = owner
	rec.LeaseExpiresAt = now.Add(lease)
	if err := tx.Save(&rec).Error; err != nil {
		return Checkpoint{}, false, fmt.Errorf("saving lease: %w", err)
	}
	return rec.toCheckpoint(), true, nil
}

// Advance implements CheckpointStore.
func (s *GormCheckpointStore) Advance(ctx context.Context, instanceID, name, owner string, pos eventstore.Position) error {
	res := s.db.WithContext(ctx).Model(&checkpointRecord{}).
		Where("instance_id = ? AND name = ? AND owner = ?", instanceID, name, owner).
		Updates(map[string]interface{}{"pos": pos.Pos, "in_tx_order": pos.InTxOrder, "retry_count": 0, "last_error": "", "failed": false})
	if res.Error != nil {
		return fmt.Errorf("advancing checkpoint %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("advancing checkpoint %s: lease not held by %s", name, owner)
	}
	return nil
}

// RecordFailure implements CheckpointStore.
func (s *GormCheckpointStore) RecordFailure(ctx context.Context, instanceID, name, owner string, failure error) error {
	return s.db.WithContext(ctx).Model(&checkpointRecord{}).
		Where("instance_id = ? AND name = ? AND owner = ?", instanceID, name, owner).
		Updates(map[string]interface{}{"retry_count": gorm.Expr("retry_count + 1"), "last_error": failure.Error()}).Error
}

// MarkFailed implements CheckpointStore.
func (s *GormCheckpointStore) MarkFailed(ctx context.Context, instanceID, name, owner string, failure error) error {
	return s.db.WithContext(ctx).Model(&checkpointRecord{}).
		Where("instance_id = ? AND name = ? AND owner = ?", instanceID, name, owner).
		Updates(map[string]interface{}{"failed": true, "last_error": failure.Error()}).Error
}

// Release implements CheckpointStore.
func (s *GormCheckpointStore) Release(ctx context.Context, instanceID, name, owner string) error {
	return s.db.WithContext(ctx).Model(&checkpointRecord{}).
		Where("instance_id = ? AND name = ? AND owner = ?", instanceID, name, owner).
		Updates(map[string]interface{}{"owner": "", "lease_expires_at": time.Time{}}).Error
}

// Get implements CheckpointStore.
func (s *GormCheckpointStore) Get(ctx context.Context, instanceID, name string) (Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).Where("instance_id = ? AND name = ?", instanceID, name).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return Checkpoint{InstanceID: instanceID, Name: name}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("reading checkpoint %s: %w", name, err)
	}
	return rec.toCheckpoint(), nil
}

// RunInTransaction acquires (or renews) the lease, calls fn with a *gorm.DB
// transaction handle and the checkpoint's current position, and — if fn
// succeeds — updates the checkpoint's position in that same transaction
// before committing. Read-model writes fn performs against tx are
// committed atomically with the checkpoint advance, so a crash between the
// two can never happen: either both land, or neither does.
//
// fn's error rolls back that transaction, including any write fn itself
// made, so the retry-count bump for that failure cannot be recorded inside
// it — it is persisted with a second, independent update once the
// transaction has unwound.
func (s *GormCheckpointStore) RunInTransaction(ctx context.Context, instanceID, name, owner string, lease time.Duration, fn func(tx *gorm.DB, current eventstore.Position) (eventstore.Position, error)) (ran bool, newPos eventstore.Position, err error) {
	var leaseAcquired bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cp, acquired, err := acquireLease(tx, instanceID, name, owner, lease)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
		leaseAcquired = true

		next, ferr := fn(tx, cp.Position)
		if ferr != nil {
			return ferr
		}

		ran = true
		newPos = next
		if next == cp.Position {
			return nil
		}
		res := tx.Model(&checkpointRecord{}).
			Where("instance_id = ? AND name = ? AND owner = ?", instanceID, name, owner).
			Updates(map[string]interface{}{"pos": next.Pos, "in_tx_order": next.InTxOrder, "retry_count": 0, "last_error": "", "failed": false})
		return res.Error
	})
	if err != nil && leaseAcquired {
		if rerr := s.RecordFailure(ctx, instanceID, name, owner, err); rerr != nil {
			return ran, newPos, fmt.Errorf("%w (recording failure also failed: %v)", err, rerr)
		}
	}
	return ran, newPos, err
}
