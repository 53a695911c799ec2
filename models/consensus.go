package models

// ConsensusState is a snapshot of the validator round machinery.
type ConsensusState struct {
	Round         uint64              `json:"round"`
	Height        uint64              `json:"height"`
	LastRoundAcks map[string]struct{} `json:"-"`
}

// Status aggregates the observable state of the node for callers.
type Status struct {
	TotalTransactions      uint64  `json:"total_transactions"`
	NetworkPeers           int     `json:"network_peers"`
	ConsensusHeight        uint64  `json:"consensus_height"`
	ConsensusRound         uint64  `json:"consensus_round"`
	ConsensusState         string  `json:"consensus_state"`
	ConsensusDegraded      bool    `json:"consensus_degraded"`
	QuantumResistanceScore float64 `json:"quantum_resistance_score"`
}
