package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/models"

	"go.uber.org/zap"
)

// Network is the peer capability consumed by the coordinator. It is used for
// status aggregation and propagation only; ledger correctness never depends
// on it.
type Network interface {
	PeerCount() int
	Broadcast(tx *models.Transaction)
}

// PeerSet is a static peer membership seeded from the bootstrap node list and
// capped at maxPeers. Broadcast is a best-effort asynchronous HTTP fan-out.
type PeerSet struct {
	client *http.Client
	mux    sync.RWMutex
	peers  []string
}

// NewPeerSet builds a peer set from bootstrap addresses, deduplicated and
// capped at maxPeers (0 means no cap).
func NewPeerSet(bootstrap []string, maxPeers int) *PeerSet {
	seen := make(map[string]struct{}, len(bootstrap))
	peers := make([]string, 0, len(bootstrap))
	for _, addr := range bootstrap {
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		if maxPeers > 0 && len(peers) >= maxPeers {
			break
		}
		seen[addr] = struct{}{}
		peers = append(peers, addr)
	}
	return &PeerSet{
		client: &http.Client{Timeout: 5 * time.Second},
		peers:  peers,
	}
}

// PeerCount returns the number of known peers.
func (p *PeerSet) PeerCount() int {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return len(p.peers)
}

// Broadcast sends the transaction to every peer without blocking the caller.
// Failures are logged and otherwise ignored.
func (p *PeerSet) Broadcast(tx *models.Transaction) {
	p.mux.RLock()
	peers := make([]string, len(p.peers))
	copy(peers, p.peers)
	p.mux.RUnlock()

	if len(peers) == 0 {
		return
	}

	body, err := json.Marshal(tx)
	if err != nil {
		logger.Logger.Error("failed to encode transaction for broadcast",
			zap.String("id", tx.ID.String()), zap.Error(err))
		return
	}

	go func() {
		for _, peer := range peers {
			url := fmt.Sprintf("http://%s/transactions", peer)
			resp, err := p.client.Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				logger.Logger.Warn("broadcast to peer failed",
					zap.String("peer", peer), zap.Error(err))
				continue
			}
			resp.Body.Close()
		}
	}()
}

// Noop is a network stub for tests and single-node runs.
type Noop struct{}

func (Noop) PeerCount() int                 { return 0 }
func (Noop) Broadcast(*models.Transaction) {}
