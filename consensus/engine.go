package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/models"

	"go.uber.org/zap"
)

var (
	// ErrQuorumTimeout means a round ended without reaching quorum.
	ErrQuorumTimeout = errors.New("consensus: quorum timeout")
	// ErrDegradedConsensus means too many consecutive rounds timed out.
	ErrDegradedConsensus = errors.New("consensus: degraded")
)

// State captures the round machinery's phase: Idle, Proposing or Finalizing.
type State uint32

const (
	Idle State = iota
	Proposing
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Proposing:
		return "Proposing"
	case Finalizing:
		return "Finalizing"
	default:
		return "Unknown"
	}
}

// degradedThreshold is the number of consecutive quorum timeouts after which
// the engine reports a degraded condition through status.
const degradedThreshold = 3

// Engine drives timed validator rounds. Each round has a deterministic leader
// and completes when a quorum of validator acknowledgments is recorded, which
// advances the consensus height. Rounds that time out are retried with the
// next round number; height does not advance. All state mutation is confined
// to the Run goroutine and the mutex-guarded acknowledgment recorder.
type Engine struct {
	blockTime      time.Duration
	grace          time.Duration
	validatorCount int
	primeModulus   uint64

	mux      sync.Mutex
	state    State
	round    uint64
	height   uint64
	acks     map[string]struct{}
	lastAcks map[string]struct{}
	timeouts int
	degraded bool
	signaled bool
	quorumCh chan struct{}
}

// NewEngine builds a round engine paced by blockTime with a grace margin of
// half the block time before a round is declared timed out.
func NewEngine(blockTime time.Duration, validatorCount int, primeModulus uint64) *Engine {
	if validatorCount < 1 {
		validatorCount = 1
	}
	return &Engine{
		blockTime:      blockTime,
		grace:          blockTime / 2,
		validatorCount: validatorCount,
		primeModulus:   primeModulus,
		acks:           make(map[string]struct{}),
		quorumCh:       make(chan struct{}, 1),
	}
}

// Quorum returns the number of acknowledgments that completes a round.
func (e *Engine) Quorum() int {
	return e.validatorCount/2 + 1
}

// Leader returns the deterministic leader index for a round:
// hash(round) mod prime modulus mod validator count. Every participant
// reproduces it without coordination.
func (e *Engine) Leader(round uint64) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	digest := sha256.Sum256(buf[:])

	n := new(big.Int).SetBytes(digest[:])
	n.Mod(n, new(big.Int).SetUint64(e.primeModulus))
	n.Mod(n, big.NewInt(int64(e.validatorCount)))
	return int(n.Int64())
}

// Acknowledge records a validator's acknowledgment for the given round. It
// reports whether the acknowledgment was accepted; acks for a round other
// than the current one are ignored.
func (e *Engine) Acknowledge(round uint64, validatorID string) bool {
	e.mux.Lock()
	defer e.mux.Unlock()

	if round != e.round {
		return false
	}
	e.acks[validatorID] = struct{}{}
	if len(e.acks) >= e.Quorum() && !e.signaled {
		e.signaled = true
		select {
		case e.quorumCh <- struct{}{}:
		default:
		}
	}
	return true
}

// Run ticks rounds until the context is cancelled. It is the single writer of
// round, height and phase state.
func (e *Engine) Run(ctx context.Context) {
	for {
		round := e.beginRound()

		timer := time.NewTimer(e.blockTime + e.grace)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.shutdown()
			return
		case <-e.quorumCh:
			timer.Stop()
			e.completeRound(round)
		case <-timer.C:
			e.timeoutRound(round)
		}
	}
}

// Snapshot returns a copy of the published consensus state.
func (e *Engine) Snapshot() models.ConsensusState {
	e.mux.Lock()
	defer e.mux.Unlock()

	acks := make(map[string]struct{}, len(e.lastAcks))
	for v := range e.lastAcks {
		acks[v] = struct{}{}
	}
	return models.ConsensusState{
		Round:         e.round,
		Height:        e.height,
		LastRoundAcks: acks,
	}
}

// Height returns the current consensus height.
func (e *Engine) Height() uint64 {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.height
}

// Round returns the current round number.
func (e *Engine) Round() uint64 {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.round
}

// State returns the current phase.
func (e *Engine) State() State {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.state
}

// Degraded reports whether the engine has seen too many consecutive quorum
// timeouts. The condition clears on the next completed round; transaction
// submission is never blocked by it.
func (e *Engine) Degraded() bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.degraded
}

// SetHeight seeds the height from a persisted checkpoint. Must be called
// before Run.
func (e *Engine) SetHeight(height uint64) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.height = height
}

func (e *Engine) beginRound() uint64 {
	e.mux.Lock()
	defer e.mux.Unlock()

	// Drop a quorum signal left over from a round that timed out at the
	// same instant it reached quorum.
	if !e.signaled {
		select {
		case <-e.quorumCh:
		default:
		}
	}
	e.state = Proposing

	logger.Logger.Debug("round started",
		zap.Uint64("round", e.round),
		zap.Int("leader", e.Leader(e.round)),
		zap.Int("quorum", e.Quorum()))
	return e.round
}

func (e *Engine) completeRound(round uint64) {
	e.mux.Lock()
	defer e.mux.Unlock()

	if round != e.round {
		return
	}
	e.state = Finalizing
	e.height++
	e.round++
	e.lastAcks = e.acks
	e.acks = make(map[string]struct{})
	e.signaled = false
	e.timeouts = 0
	e.degraded = false
	e.state = Idle

	logger.Logger.Info("round completed",
		zap.Uint64("round", round),
		zap.Uint64("height", e.height),
		zap.Int("acks", len(e.lastAcks)))
}

func (e *Engine) timeoutRound(round uint64) {
	e.mux.Lock()
	defer e.mux.Unlock()

	if round != e.round {
		return
	}
	e.round++
	e.acks = make(map[string]struct{})
	e.signaled = false
	e.timeouts++
	if e.timeouts >= degradedThreshold && !e.degraded {
		e.degraded = true
		logger.Logger.Error("consensus degraded",
			zap.Uint64("round", round),
			zap.Int("consecutive_timeouts", e.timeouts),
			zap.Error(ErrDegradedConsensus))
	} else {
		logger.Logger.Warn("round timed out, retrying",
			zap.Uint64("round", round),
			zap.Uint64("next_round", e.round),
			zap.Error(ErrQuorumTimeout))
	}
	e.state = Idle
}

func (e *Engine) shutdown() {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.state = Idle
}
