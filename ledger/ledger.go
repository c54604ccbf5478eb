package ledger

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/sentinelops/arbiter/audit"
	"github.com/sentinelops/arbiter/types"
)

// Bucket names in bbolt
var (
	bucketActions = []byte("actions")
	bucketMeta    = []byte("meta")
)

// Ledger is the authoritative store of Action records. All status changes
// go through compare-and-set transitions; every successful transition is
// appended to the audit trail in commit order. Callers always receive
// copies, never references into the store.
type Ledger struct {
	mu sync.RWMutex

	// In-memory index for fast lookups
	index *btree.BTreeG[*actionState]

	// On-disk storage
	db *bbolt.DB

	trail *audit.Trail

	// Per-target mutexes serializing creation and dispatch on one entity
	targetMu    sync.Mutex
	targetLocks map[string]*sync.Mutex
}

// actionState tracks an action's position in the index
type actionState struct {
	ID        string
	Target    string
	Status    types.ActionStatus
	CreatedAt time.Time
}

// New creates a ledger backed by a bbolt file in dir, appending every
// transition to the given audit trail.
func New(dir string, trail *audit.Trail) (*Ledger, error) {
	dbPath := filepath.Join(dir, "arbiter.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketActions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		index: btree.NewG[*actionState](32, func(a, b *actionState) bool {
			return a.ID < b.ID
		}),
		db:          db,
		trail:       trail,
		targetLocks: make(map[string]*sync.Mutex),
	}

	if err := l.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return l, nil
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// lockTarget returns the mutex serializing operations on one target
func (l *Ledger) lockTarget(target string) *sync.Mutex {
	l.targetMu.Lock()
	defer l.targetMu.Unlock()

	m, ok := l.targetLocks[target]
	if !ok {
		m = &sync.Mutex{}
		l.targetLocks[target] = m
	}
	return m
}

// Create persists a new action in its initial status and records the
// creation transition. Creation is serialized per target.
func (l *Ledger) Create(action types.Action, actor, details string) error {
	if err := action.Validate(); err != nil {
		return err
	}

	tl := l.lockTarget(action.Target)
	tl.Lock()
	defer tl.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, found := l.index.Get(&actionState{ID: action.ID}); found {
		return fmt.Errorf("action %s already exists", action.ID)
	}

	if err := l.put(action); err != nil {
		return err
	}

	l.index.ReplaceOrInsert(&actionState{
		ID:        action.ID,
		Target:    action.Target,
		Status:    action.Status,
		CreatedAt: action.CreatedAt,
	})

	l.appendAudit(action.ID, "", action.Status, actor, details)
	return nil
}

// Get returns a snapshot of a single action
func (l *Ledger) Get(id string) (types.Action, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.load(id)
}

// List returns snapshots of all actions matching the filter. Reads operate
// on a consistent bbolt view and never take the per-target locks.
func (l *Ledger) List(filter types.ActionFilter) ([]types.Action, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []types.Action

	err := l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		return bucket.ForEach(func(k, v []byte) error {
			var a types.Action
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("corrupt action record %s: %w", k, err)
			}
			if filter.Matches(&a) {
				results = append(results, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// Transition performs a compare-and-set from exactly one status to another.
// A mismatch between the stored status and from leaves the ledger unchanged
// and returns a state-conflict error.
func (l *Ledger) Transition(id string, from, to types.ActionStatus, actor, details string, mutate func(*types.Action)) (types.Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.transitionLocked(id, []types.ActionStatus{from}, to, actor, details, mutate)
}

// BeginDispatch atomically moves a dispatchable action to the transient
// dispatching status. The per-target lock is held only for the CAS itself,
// never across the effector call, so a slow effector cannot starve other
// operations on the same target.
func (l *Ledger) BeginDispatch(id, actor string) (types.Action, error) {
	l.mu.RLock()
	state, found := l.index.Get(&actionState{ID: id})
	l.mu.RUnlock()
	if !found {
		return types.Action{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	tl := l.lockTarget(state.Target)
	tl.Lock()
	defer tl.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load(id)
	if err != nil {
		return types.Action{}, err
	}
	if !current.Dispatchable() {
		return types.Action{}, fmt.Errorf("%w: cannot dispatch action %s in status %s (flagged=%t)",
			types.ErrStateConflict, id, current.Status, current.FlaggedForReview)
	}

	return l.transitionLocked(id, []types.ActionStatus{current.Status}, types.StatusDispatching, actor, "", nil)
}

// transitionLocked performs the CAS under l.mu
func (l *Ledger) transitionLocked(id string, from []types.ActionStatus, to types.ActionStatus, actor, details string, mutate func(*types.Action)) (types.Action, error) {
	current, err := l.load(id)
	if err != nil {
		return types.Action{}, err
	}

	matched := false
	for _, f := range from {
		if current.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return types.Action{}, fmt.Errorf("%w: action %s is %s, expected %v",
			types.ErrStateConflict, id, current.Status, from)
	}

	prev := current.Status
	current.Status = to
	if mutate != nil {
		mutate(&current)
	}

	if err := l.put(current); err != nil {
		return types.Action{}, err
	}

	if state, found := l.index.Get(&actionState{ID: id}); found {
		state.Status = to
		l.index.ReplaceOrInsert(state)
	}

	l.appendAudit(id, prev, to, actor, details)
	return current.Clone(), nil
}

// put serializes and stores an action record
func (l *Ledger) put(action types.Action) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		value, err := json.Marshal(action)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(action.ID), value)
	})
}

// load reads a single action from disk
func (l *Ledger) load(id string) (types.Action, error) {
	var action types.Action
	found := false

	err := l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		value := bucket.Get([]byte(id))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &action)
	})
	if err != nil {
		return types.Action{}, err
	}
	if !found {
		return types.Action{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return action, nil
}

// appendAudit records the transition. Audit failure does not roll back the
// committed ledger state; the ledger stays authoritative.
func (l *Ledger) appendAudit(id string, prev, next types.ActionStatus, actor, details string) {
	if l.trail == nil {
		return
	}
	if err := l.trail.Append(id, prev, next, actor, details); err != nil {
		log.Error().Err(err).Str("action_id", id).Msg("audit append failed")
	}
}

// rebuildIndex scans the actions bucket on startup
func (l *Ledger) rebuildIndex() error {
	return l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		return bucket.ForEach(func(k, v []byte) error {
			var a types.Action
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("corrupt action record %s: %w", k, err)
			}
			l.index.ReplaceOrInsert(&actionState{
				ID:        a.ID,
				Target:    a.Target,
				Status:    a.Status,
				CreatedAt: a.CreatedAt,
			})
			return nil
		})
	})
}
