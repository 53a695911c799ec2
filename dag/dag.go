package dag

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/models"

	"go.uber.org/zap"
)

var (
	// ErrDanglingParent means a referenced parent id is not in the ledger.
	ErrDanglingParent = errors.New("dag: dangling parent")
	// ErrDuplicateTransaction means the transaction id already exists.
	ErrDuplicateTransaction = errors.New("dag: duplicate transaction")
	// ErrCycleDetected means a parent is not causally prior to its child.
	ErrCycleDetected = errors.New("dag: cycle detected")
	// ErrTooManyParents means the parent list exceeds the configured bound.
	ErrTooManyParents = errors.New("dag: too many parents")
	// ErrUnknownTransaction means the id is not in the ledger.
	ErrUnknownTransaction = errors.New("dag: unknown transaction")
	// ErrNotRemovable means a rollback target already has children.
	ErrNotRemovable = errors.New("dag: transaction has children")
)

// Ledger owns the append-only transaction graph, the live tip set and the
// derived confidence scores. The graph is an id-indexed arena: transactions
// by id plus a children adjacency map, so there are no cyclic references.
// A single mutex guards every mutation; each critical section is bounded so
// no reader ever observes a half-applied insert.
type Ledger struct {
	mux        sync.Mutex
	maxParents int
	txs        map[models.TransactionID]*models.Transaction
	children   map[models.TransactionID][]models.TransactionID
	tips       map[models.TransactionID]struct{}
	confidence map[models.TransactionID]float64
	dirty      map[models.TransactionID]struct{}
}

// NewLedger creates an empty ledger. maxParents <= 0 selects the default.
func NewLedger(maxParents int) *Ledger {
	if maxParents <= 0 {
		maxParents = models.MaxParents
	}
	return &Ledger{
		maxParents: maxParents,
		txs:        make(map[models.TransactionID]*models.Transaction),
		children:   make(map[models.TransactionID][]models.TransactionID),
		tips:       make(map[models.TransactionID]struct{}),
		confidence: make(map[models.TransactionID]float64),
		dirty:      make(map[models.TransactionID]struct{}),
	}
}

// Insert appends a transaction to the graph. On success the new id becomes a
// tip and every parent that gained its first child leaves the tip set, in one
// atomic step. Ancestors are marked dirty for the next confidence recompute.
func (l *Ledger) Insert(tx *models.Transaction) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	if _, ok := l.txs[tx.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
	}
	if len(tx.Parents) > l.maxParents {
		return fmt.Errorf("%w: %d parents, at most %d allowed", ErrTooManyParents, len(tx.Parents), l.maxParents)
	}
	if len(tx.Parents) == 0 && len(l.txs) > 0 {
		return fmt.Errorf("%w: non-genesis transaction must reference at least one parent", ErrDanglingParent)
	}
	for _, pid := range tx.Parents {
		parent, ok := l.txs[pid]
		if !ok {
			return fmt.Errorf("%w: %s", ErrDanglingParent, pid)
		}
		// Defensive: the parent relation is strictly temporal.
		if parent.Timestamp > tx.Timestamp {
			return fmt.Errorf("%w: parent %s is newer than %s", ErrCycleDetected, pid, tx.ID)
		}
	}

	l.txs[tx.ID] = tx
	seen := make(map[models.TransactionID]struct{}, len(tx.Parents))
	for _, pid := range tx.Parents {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		l.children[pid] = append(l.children[pid], tx.ID)
		delete(l.tips, pid)
	}
	l.tips[tx.ID] = struct{}{}
	l.confidence[tx.ID] = 0
	l.markAncestorsDirty(tx.ID)

	return nil
}

// Remove rolls back a just-inserted transaction that has no children yet.
// Only the coordinator's storage-failure path uses it; the graph is
// append-only otherwise. The tip set is restored exactly.
func (l *Ledger) Remove(id models.TransactionID) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	tx, ok := l.txs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if len(l.children[id]) > 0 {
		return fmt.Errorf("%w: %s", ErrNotRemovable, id)
	}

	delete(l.txs, id)
	delete(l.tips, id)
	delete(l.confidence, id)
	delete(l.dirty, id)
	delete(l.children, id)

	seen := make(map[models.TransactionID]struct{}, len(tx.Parents))
	for _, pid := range tx.Parents {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		l.children[pid] = dropChild(l.children[pid], id)
		if len(l.children[pid]) == 0 {
			delete(l.children, pid)
			l.tips[pid] = struct{}{}
		}
	}

	logger.Logger.Warn("transaction rolled back", zap.String("id", id.String()))
	return nil
}

// Get returns the transaction for id, if present. The returned value must be
// treated as immutable.
func (l *Ledger) Get(id models.TransactionID) (*models.Transaction, bool) {
	l.mux.Lock()
	defer l.mux.Unlock()
	tx, ok := l.txs[id]
	return tx, ok
}

// Size returns the number of transactions in the ledger.
func (l *Ledger) Size() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.txs)
}

// Tips returns a snapshot of the current tip set.
func (l *Ledger) Tips() []models.TransactionID {
	l.mux.Lock()
	defer l.mux.Unlock()
	out := make([]models.TransactionID, 0, len(l.tips))
	for id := range l.tips {
		out = append(out, id)
	}
	return out
}

// Confidence returns the current confidence score for id.
func (l *Ledger) Confidence(id models.TransactionID) (float64, bool) {
	l.mux.Lock()
	defer l.mux.Unlock()
	score, ok := l.confidence[id]
	return score, ok
}

// SelectParents chooses up to count distinct tips for a new transaction,
// ranked by confidence, then recency, with ties broken by lexicographically
// smallest id so every validator selects the same parents from the same
// snapshot. An empty result means the ledger is empty and the caller should
// submit a genesis transaction.
func (l *Ledger) SelectParents(count int) []models.TransactionID {
	l.mux.Lock()
	defer l.mux.Unlock()

	if count <= 0 || len(l.tips) == 0 {
		return nil
	}

	type candidate struct {
		id         models.TransactionID
		confidence float64
		timestamp  int64
	}
	candidates := make([]candidate, 0, len(l.tips))
	for id := range l.tips {
		candidates = append(candidates, candidate{
			id:         id,
			confidence: l.confidence[id],
			timestamp:  l.txs[id].Timestamp,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		if candidates[i].timestamp != candidates[j].timestamp {
			return candidates[i].timestamp > candidates[j].timestamp
		}
		return bytes.Compare(candidates[i].id[:], candidates[j].id[:]) < 0
	})

	if count > len(candidates) {
		count = len(candidates)
	}
	out := make([]models.TransactionID, count)
	for i := range out {
		out[i] = candidates[i].id
	}
	return out
}

// UpdateConfidenceScores recomputes confidence from the current tip frontier:
// a transaction reached by a tips (a tip reaches itself) scores a/(a+1).
// In an append-only graph a never shrinks, so scores never decrease, and the
// rule is idempotent: with no intervening inserts a rerun changes nothing.
func (l *Ledger) UpdateConfidenceScores() {
	l.mux.Lock()
	defer l.mux.Unlock()

	if len(l.dirty) == 0 {
		return
	}

	reach := make(map[models.TransactionID]int, len(l.txs))
	for tip := range l.tips {
		visited := make(map[models.TransactionID]struct{})
		stack := []models.TransactionID{tip}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[cur]; ok {
				continue
			}
			visited[cur] = struct{}{}
			reach[cur]++
			if tx, ok := l.txs[cur]; ok {
				stack = append(stack, tx.Parents...)
			}
		}
	}

	for id := range l.txs {
		approving := reach[id]
		score := float64(approving) / float64(approving+1)
		if score > l.confidence[id] {
			l.confidence[id] = score
		}
	}
	l.dirty = make(map[models.TransactionID]struct{})

	logger.Logger.Debug("confidence scores recomputed",
		zap.Int("transactions", len(l.txs)), zap.Int("tips", len(l.tips)))
}

// markAncestorsDirty flags id and every ancestor for the next recompute. The
// dirty set is ancestor-closed, so an already-dirty node ends the walk early.
func (l *Ledger) markAncestorsDirty(id models.TransactionID) {
	queue := []models.TransactionID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := l.dirty[cur]; ok {
			continue
		}
		l.dirty[cur] = struct{}{}
		if tx, ok := l.txs[cur]; ok {
			queue = append(queue, tx.Parents...)
		}
	}
}

func dropChild(ids []models.TransactionID, id models.TransactionID) []models.TransactionID {
	out := ids[:0]
	for _, cur := range ids {
		if cur != id {
			out = append(out, cur)
		}
	}
	return out
}
