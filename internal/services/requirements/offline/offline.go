// Package offline mirrors the unfiltered first page into an embedded bbolt
// file so the list still renders without a network, and queues edits made
// while away for replay on reconnect.
package offline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	perr "onehub/internal/platform/errors"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/timeutil"
	"onehub/internal/services/requirements/domain"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketPending   = []byte("pending")
)

// DefaultTTL is how long a snapshot counts as fresh
const DefaultTTL = 24 * time.Hour

// snapshot is the stored envelope around the mirrored rows
type snapshot struct {
	CachedAt time.Time            `json:"cached_at"`
	Rows     []domain.Requirement `json:"rows"`
}

// PendingMutation is one edit queued while offline
type PendingMutation struct {
	RecordID string       `json:"record_id"`
	TenantID string       `json:"tenant_id"`
	Patch    domain.Patch `json:"patch"`
	QueuedAt time.Time    `json:"queued_at"`
}

// Store is the embedded per-device offline store
type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
	log logger.Logger
}

// Open opens or creates the store file; ttl <= 0 uses DefaultTTL
func Open(path string, ttl time.Duration, log logger.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "open offline store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketPending)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "init offline store")
	}
	return &Store{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return timeutil.Now() },
		log: log.With().Str("component", "offline").Logger(),
	}, nil
}

// Close releases the underlying file
func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot replaces the user's mirrored rows wholesale
func (s *Store) SaveSnapshot(_ context.Context, userID string, rows []domain.Requirement) error {
	raw, err := json.Marshal(snapshot{CachedAt: s.now().UTC(), Rows: rows})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode snapshot")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(userID), raw)
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "save snapshot")
	}
	return nil
}

// LoadSnapshot returns the mirrored rows. No snapshot means nil rows and no
// error; a snapshot past its TTL is only handed out when allowStale is set.
func (s *Store) LoadSnapshot(_ context.Context, userID string, allowStale bool) ([]domain.Requirement, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSnapshots).Get([]byte(userID)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "load snapshot")
	}
	if raw == nil {
		return nil, nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode snapshot")
	}
	if !allowStale && s.now().Sub(snap.CachedAt) > s.ttl {
		return nil, nil
	}
	return snap.Rows, nil
}

// Enqueue appends one pending mutation and optimistically rewrites the
// matching snapshot row so the offline view reflects the edit right away
func (s *Store) Enqueue(_ context.Context, userID string, m PendingMutation) error {
	if m.QueuedAt.IsZero() {
		m.QueuedAt = s.now().UTC()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode pending mutation")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketPending).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := b.Put(key[:], raw); err != nil {
			return err
		}
		return s.applyToSnapshot(tx, userID, m)
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "enqueue pending mutation")
	}
	return nil
}

// applyToSnapshot patches the snapshot row in place; a missing snapshot or
// row is fine, the queue is still the source of truth for replay
func (s *Store) applyToSnapshot(tx *bolt.Tx, userID string, m PendingMutation) error {
	b := tx.Bucket(bucketSnapshots)
	raw := b.Get([]byte(userID))
	if raw == nil {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil
	}

	touched := false
	for i := range snap.Rows {
		if snap.Rows[i].ID == m.RecordID {
			ApplyPatch(&snap.Rows[i], m.Patch)
			touched = true
			break
		}
	}
	if !touched {
		return nil
	}

	out, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return b.Put([]byte(userID), out)
}

// ApplyPatch folds a sparse patch into one requirement row
func ApplyPatch(r *domain.Requirement, p domain.Patch) {
	if p.Status != nil {
		if st, ok := domain.ParseStatus(*p.Status); ok {
			r.Status = st
		}
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Company != nil {
		r.Company = *p.Company
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.TechStack != nil {
		r.TechStack = *p.TechStack
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.VendorName != nil {
		r.VendorName = *p.VendorName
	}
	if p.VendorEmail != nil {
		r.VendorEmail = *p.VendorEmail
	}
	if p.VendorPhone != nil {
		r.VendorPhone = *p.VendorPhone
	}
	if p.Rate != nil {
		r.Rate = *p.Rate
	}
	if p.Remote != nil {
		if rm, ok := domain.ParseRemote(*p.Remote); ok {
			r.Remote = rm
		}
	}
}

// Drain removes and returns the user's queued mutations in FIFO order
func (s *Store) Drain(_ context.Context, userID string) ([]PendingMutation, error) {
	var out []PendingMutation
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		if err := b.ForEach(func(_, v []byte) error {
			var m PendingMutation
			if err := json.Unmarshal(v, &m); err != nil {
				s.log.Warn().Err(err).Str("user", userID).Msg("dropping corrupt pending mutation")
				return nil
			}
			out = append(out, m)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).DeleteBucket([]byte(userID))
	})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "drain pending mutations")
	}
	return out, nil
}

// PendingCount reports how many edits wait for replay
func (s *Store) PendingCount(_ context.Context, userID string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketPending).Bucket([]byte(userID)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeDB, "count pending mutations")
	}
	return n, nil
}

// Replay drains the queue and pushes each mutation through the normal
// write path in order. A mutation that can never succeed, say the record
// was deleted remotely, is logged and discarded; the first transient
// failure stops the replay and re-queues the remainder.
func (s *Store) Replay(ctx context.Context, userID string, w domain.WriterPort) error {
	pending, err := s.Drain(ctx, userID)
	if err != nil {
		return err
	}
	for i, m := range pending {
		_, err := w.Update(ctx, m.TenantID, m.RecordID, m.Patch)
		if err == nil {
			continue
		}
		if permanentFailure(err) {
			s.log.Warn().Err(err).
				Str("user", userID).
				Str("record", m.RecordID).
				Msg("discarding unreplayable mutation")
			continue
		}
		for _, rest := range pending[i:] {
			if qerr := s.Enqueue(ctx, userID, rest); qerr != nil {
				s.log.Error().Err(qerr).Str("user", userID).Msg("requeue after failed replay")
			}
		}
		return perr.Wrap(err, perr.CodeOf(err), "replay pending mutation")
	}
	return nil
}

// permanentFailure reports error codes no amount of retrying can cure
func permanentFailure(err error) bool {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeNotFound,
		perr.ErrorCodeInvalidArgument,
		perr.ErrorCodeValidation,
		perr.ErrorCodeDuplicateKey:
		return true
	}
	return false
}
