package repository

import (
	"encoding/json"
	"errors"

	"github.com/ancourn/kaldr1-sub003/db"
	"github.com/ancourn/kaldr1-sub003/models"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound means the requested record does not exist in storage.
var ErrNotFound = errors.New("repository: not found")

// Key prefixes keep transaction records and consensus checkpoints apart in
// the same keyspace.
const (
	txKeyPrefix       = "tx:"
	consensusStateKey = "consensus:state"
)

// It abstracts the storage layer from the business logic
type TransactionRepositoryInterface interface {
	PutTransaction(tx *models.Transaction) error
	GetTransaction(id models.TransactionID) (*models.Transaction, error)
	GetAllTransactions() ([]*models.Transaction, error)
	PutConsensusState(st *models.ConsensusState) error
	GetConsensusState() (*models.ConsensusState, error)
}

// TransactionRepository implements the TransactionRepositoryInterface using
// LevelDB as the storage backend
type TransactionRepository struct {
	db *db.LevelDB
}

// NewTransactionRepository creates and returns a new TransactionRepository instance
func NewTransactionRepository(db *db.LevelDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// PutTransaction stores a transaction record durably
func (r *TransactionRepository) PutTransaction(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return r.db.Put(txKey(tx.ID), data)
}

// GetTransaction retrieves a transaction by id
func (r *TransactionRepository) GetTransaction(id models.TransactionID) (*models.Transaction, error) {
	data, err := r.db.Get(txKey(id))
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetAllTransactions retrieves every stored transaction
func (r *TransactionRepository) GetAllTransactions() ([]*models.Transaction, error) {
	iter := r.db.NewPrefixIterator([]byte(txKeyPrefix))
	defer iter.Release()

	var txs []*models.Transaction
	for iter.Next() {
		var tx models.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	return txs, iter.Error()
}

// PutConsensusState checkpoints the round machinery so a restarted node can
// resume its height
func (r *TransactionRepository) PutConsensusState(st *models.ConsensusState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.db.Put([]byte(consensusStateKey), data)
}

// GetConsensusState retrieves the latest consensus checkpoint
func (r *TransactionRepository) GetConsensusState() (*models.ConsensusState, error) {
	data, err := r.db.Get([]byte(consensusStateKey))
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var st models.ConsensusState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func txKey(id models.TransactionID) []byte {
	return []byte(txKeyPrefix + id.String())
}
