package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub003/consensus"
	"github.com/ancourn/kaldr1-sub003/crypto"
	"github.com/ancourn/kaldr1-sub003/dag"
	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/models"
	"github.com/ancourn/kaldr1-sub003/network"
	"github.com/ancourn/kaldr1-sub003/quantum"
	"github.com/ancourn/kaldr1-sub003/repository"

	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature means the signature does not verify against the sender key.
	ErrInvalidSignature = errors.New("blockchain: invalid signature")
	// ErrInvalidID means the submitted id does not match the content-derived id.
	ErrInvalidID = errors.New("blockchain: transaction id mismatch")
	// ErrStorageFailure wraps a storage error during persistence.
	ErrStorageFailure = errors.New("blockchain: storage failure")
	// ErrAlreadyRunning is returned by Start on a running node.
	ErrAlreadyRunning = errors.New("blockchain: already running")
	// ErrNotRunning is returned by Stop on a stopped node.
	ErrNotRunning = errors.New("blockchain: not running")
)

// resistanceWindow is how many recent accepted proofs feed the aggregate
// resistance score in status.
const resistanceWindow = 32

// DefaultConfidenceInterval paces the background confidence recompute.
const DefaultConfidenceInterval = time.Second

// Blockchain composes the ledger, the proof validator, the consensus engine
// and the storage, crypto and network capabilities behind the operations the
// API layer calls: submit, query, status and lifecycle.
type Blockchain struct {
	ledger    *dag.Ledger
	validator *quantum.Validator
	engine    *consensus.Engine
	repo      repository.TransactionRepositoryInterface
	signer    crypto.Signer
	net       network.Network

	confidenceInterval time.Duration

	mux     sync.Mutex
	recent  []int // resistance scores of recent accepted proofs
	running bool
	cancel  context.CancelFunc

	wg       sync.WaitGroup
	submitWg sync.WaitGroup
}

// New wires the coordinator. A confidenceInterval of 0 selects the default.
func New(
	ledger *dag.Ledger,
	validator *quantum.Validator,
	engine *consensus.Engine,
	repo repository.TransactionRepositoryInterface,
	signer crypto.Signer,
	net network.Network,
	confidenceInterval time.Duration,
) *Blockchain {
	if confidenceInterval <= 0 {
		confidenceInterval = DefaultConfidenceInterval
	}
	return &Blockchain{
		ledger:             ledger,
		validator:          validator,
		engine:             engine,
		repo:               repo,
		signer:             signer,
		net:                net,
		confidenceInterval: confidenceInterval,
	}
}

// SubmitTransaction runs the acceptance pipeline: signature check, quantum
// proof check, graph insert, durable persist. Any failing stage returns its
// typed error and leaves no side effect; if persistence fails the in-memory
// insert is rolled back so the ledger and the store never diverge.
func (b *Blockchain) SubmitTransaction(tx *models.Transaction) (models.TransactionID, error) {
	b.submitWg.Add(1)
	defer b.submitWg.Done()

	if tx.ID.IsZero() {
		tx.ID = tx.ComputeID()
	} else if tx.ID != tx.ComputeID() {
		return models.TransactionID{}, fmt.Errorf("%w: %s", ErrInvalidID, tx.ID)
	}

	if !b.signer.Verify(tx.Sender, tx.SigningPayload(), tx.Signature) {
		return models.TransactionID{}, fmt.Errorf("%w: %s", ErrInvalidSignature, tx.ID)
	}

	if err := b.validator.Verify(tx); err != nil {
		return models.TransactionID{}, err
	}

	if err := b.ledger.Insert(tx); err != nil {
		return models.TransactionID{}, err
	}

	if err := b.repo.PutTransaction(tx); err != nil {
		if rbErr := b.ledger.Remove(tx.ID); rbErr != nil {
			logger.Logger.Error("rollback after storage failure failed",
				zap.String("id", tx.ID.String()), zap.Error(rbErr))
		}
		return models.TransactionID{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	b.recordResistance(tx.QuantumProof.ResistanceScore)
	b.net.Broadcast(tx)

	logger.Logger.Debug("transaction accepted",
		zap.String("id", tx.ID.String()),
		zap.Int("parents", len(tx.Parents)),
		zap.Int("resistance_score", tx.QuantumProof.ResistanceScore))
	return tx.ID, nil
}

// GetTransaction looks a transaction up in the in-memory graph.
func (b *Blockchain) GetTransaction(id models.TransactionID) (*models.Transaction, bool) {
	return b.ledger.Get(id)
}

// SelectParents proposes up to count parent ids for a new transaction. An
// empty result means the ledger is empty and a genesis submission is needed.
func (b *Blockchain) SelectParents(count int) []models.TransactionID {
	return b.ledger.SelectParents(count)
}

// GetStatus aggregates a snapshot across the ledger, the network capability
// and the consensus engine. It takes no long-held locks.
func (b *Blockchain) GetStatus() models.Status {
	st := b.engine.Snapshot()
	return models.Status{
		TotalTransactions:      uint64(b.ledger.Size()),
		NetworkPeers:           b.net.PeerCount(),
		ConsensusHeight:        st.Height,
		ConsensusRound:         st.Round,
		ConsensusState:         b.engine.State().String(),
		ConsensusDegraded:      b.engine.Degraded(),
		QuantumResistanceScore: b.meanResistance(),
	}
}

// Restore replays durable transactions into the in-memory graph and resumes
// consensus height from the last checkpoint. Call once before Start.
func (b *Blockchain) Restore() (int, error) {
	txs, err := b.repo.GetAllTransactions()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Timestamp != txs[j].Timestamp {
			return txs[i].Timestamp < txs[j].Timestamp
		}
		return strings.Compare(txs[i].ID.String(), txs[j].ID.String()) < 0
	})

	restored := 0
	pending := txs
	for len(pending) > 0 {
		var deferred []*models.Transaction
		progress := false
		for _, tx := range pending {
			err := b.ledger.Insert(tx)
			switch {
			case err == nil:
				restored++
				progress = true
			case errors.Is(err, dag.ErrDanglingParent):
				// Parent may appear later in this pass.
				deferred = append(deferred, tx)
			default:
				logger.Logger.Warn("skipping unrestorable transaction",
					zap.String("id", tx.ID.String()), zap.Error(err))
				progress = true
			}
		}
		if !progress {
			for _, tx := range deferred {
				logger.Logger.Warn("stored transaction references missing parent",
					zap.String("id", tx.ID.String()))
			}
			break
		}
		pending = deferred
	}
	b.ledger.UpdateConfidenceScores()

	if st, err := b.repo.GetConsensusState(); err == nil {
		b.engine.SetHeight(st.Height)
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Logger.Warn("failed to load consensus checkpoint", zap.Error(err))
	}

	if restored > 0 {
		logger.Logger.Info("ledger restored from storage", zap.Int("transactions", restored))
	}
	return restored, nil
}

// Start spawns the confidence-recompute task and the consensus round task.
func (b *Blockchain) Start() error {
	b.mux.Lock()
	defer b.mux.Unlock()

	if b.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.confidenceLoop(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.engine.Run(ctx)
	}()

	logger.Logger.Info("blockchain started",
		zap.Duration("confidence_interval", b.confidenceInterval))
	return nil
}

// Stop cancels both background tasks and joins them, then drains in-flight
// submissions and checkpoints the consensus state. After Stop returns no
// background mutation occurs.
func (b *Blockchain) Stop() error {
	b.mux.Lock()
	if !b.running {
		b.mux.Unlock()
		return ErrNotRunning
	}
	b.running = false
	cancel := b.cancel
	b.mux.Unlock()

	cancel()
	b.wg.Wait()
	b.submitWg.Wait()

	st := b.engine.Snapshot()
	if err := b.repo.PutConsensusState(&st); err != nil {
		logger.Logger.Warn("failed to checkpoint consensus state", zap.Error(err))
	}

	logger.Logger.Info("blockchain stopped", zap.Uint64("height", st.Height))
	return nil
}

func (b *Blockchain) confidenceLoop(ctx context.Context) {
	ticker := time.NewTicker(b.confidenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.ledger.UpdateConfidenceScores()
		}
	}
}

func (b *Blockchain) recordResistance(score int) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.recent = append(b.recent, score)
	if len(b.recent) > resistanceWindow {
		b.recent = b.recent[len(b.recent)-resistanceWindow:]
	}
}

func (b *Blockchain) meanResistance() float64 {
	b.mux.Lock()
	defer b.mux.Unlock()
	if len(b.recent) == 0 {
		return 0
	}
	sum := 0
	for _, s := range b.recent {
		sum += s
	}
	return float64(sum) / float64(len(b.recent))
}
