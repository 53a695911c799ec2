package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ancourn/kaldr1-sub003/consensus"
)

const testPrime = 2147483647

func TestLeaderIsDeterministicAndBounded(t *testing.T) {
	e := consensus.NewEngine(time.Second, 5, testPrime)

	for round := uint64(0); round < 50; round++ {
		first := e.Leader(round)
		if first < 0 || first >= 5 {
			t.Fatalf("leader %d out of range for round %d", first, round)
		}
		for i := 0; i < 3; i++ {
			if got := e.Leader(round); got != first {
				t.Fatalf("leader not deterministic for round %d: %d != %d", round, got, first)
			}
		}
	}
}

func TestQuorumSize(t *testing.T) {
	cases := []struct {
		validators int
		quorum     int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, c := range cases {
		e := consensus.NewEngine(time.Second, c.validators, testPrime)
		if got := e.Quorum(); got != c.quorum {
			t.Fatalf("validators=%d: expected quorum %d, got %d", c.validators, c.quorum, got)
		}
	}
}

func TestRoundCompletionAdvancesHeight(t *testing.T) {
	e := consensus.NewEngine(50*time.Millisecond, 3, testPrime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	deadline := time.After(3 * time.Second)
	for e.Height() < 2 {
		select {
		case <-deadline:
			t.Fatalf("height did not advance: height=%d round=%d", e.Height(), e.Round())
		default:
		}
		round := e.Round()
		e.Acknowledge(round, "validator-1")
		e.Acknowledge(round, "validator-2")
		time.Sleep(5 * time.Millisecond)
	}

	if e.Degraded() {
		t.Fatalf("healthy engine reports degraded")
	}
}

func TestQuorumTimeoutDoesNotAdvanceHeight(t *testing.T) {
	e := consensus.NewEngine(20*time.Millisecond, 3, testPrime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	// One acknowledgment per round never reaches the quorum of 2.
	deadline := time.After(2 * time.Second)
	for e.Round() < 3 {
		select {
		case <-deadline:
			t.Fatalf("rounds did not time out: round=%d", e.Round())
		default:
		}
		e.Acknowledge(e.Round(), "validator-1")
		time.Sleep(5 * time.Millisecond)
	}

	if got := e.Height(); got != 0 {
		t.Fatalf("height advanced without quorum: %d", got)
	}
	if !e.Degraded() {
		t.Fatalf("expected degraded condition after 3 consecutive timeouts")
	}
}

func TestDegradedClearsOnCompletedRound(t *testing.T) {
	e := consensus.NewEngine(15*time.Millisecond, 3, testPrime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	deadline := time.After(2 * time.Second)
	for !e.Degraded() {
		select {
		case <-deadline:
			t.Fatalf("engine never degraded")
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}

	for e.Height() < 1 {
		select {
		case <-deadline:
			t.Fatalf("degraded engine never recovered")
		default:
		}
		round := e.Round()
		e.Acknowledge(round, "validator-1")
		e.Acknowledge(round, "validator-2")
		time.Sleep(5 * time.Millisecond)
	}

	if e.Degraded() {
		t.Fatalf("degraded condition did not clear after a completed round")
	}
}

func TestSnapshotCarriesLastRoundAcks(t *testing.T) {
	e := consensus.NewEngine(50*time.Millisecond, 3, testPrime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	deadline := time.After(3 * time.Second)
	for e.Height() < 1 {
		select {
		case <-deadline:
			t.Fatalf("round never completed")
		default:
		}
		round := e.Round()
		e.Acknowledge(round, "validator-1")
		e.Acknowledge(round, "validator-2")
		time.Sleep(5 * time.Millisecond)
	}

	st := e.Snapshot()
	if st.Height < 1 {
		t.Fatalf("snapshot height %d", st.Height)
	}
	if len(st.LastRoundAcks) < 2 {
		t.Fatalf("expected at least 2 acks in snapshot, got %d", len(st.LastRoundAcks))
	}
	if _, ok := st.LastRoundAcks["validator-1"]; !ok {
		t.Fatalf("validator-1 missing from last round acks")
	}
}

func TestAcknowledgeIgnoresWrongRound(t *testing.T) {
	e := consensus.NewEngine(time.Second, 3, testPrime)

	if e.Acknowledge(99, "validator-1") {
		t.Fatalf("acknowledgment for a future round was accepted")
	}
	if !e.Acknowledge(0, "validator-1") {
		t.Fatalf("acknowledgment for the current round was rejected")
	}
}
