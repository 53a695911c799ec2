package db

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB wraps the actual LevelDB connection
type LevelDB struct {
	conn *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB instance at the given path.
// cacheSizeMb sizes the block cache; zero keeps the library default.
func NewLevelDB(path string, cacheSizeMb int) (*LevelDB, error) {
	var opts *opt.Options
	if cacheSizeMb > 0 {
		opts = &opt.Options{BlockCacheCapacity: cacheSizeMb * opt.MiB}
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// Close safely closes the LevelDB connection
func (l *LevelDB) Close() error {
	return l.conn.Close()
}

// Put inserts or updates a key-value pair
func (l *LevelDB) Put(key, value []byte) error {
	return l.conn.Put(key, value, nil)
}

// Get retrieves the value for a given key
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.conn.Get(key, nil)
}

// Has reports whether a key exists
func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.conn.Has(key, nil)
}

// NewIterator returns an iterator to loop over all key-value pairs
func (l *LevelDB) NewIterator() iterator.Iterator {
	return l.conn.NewIterator(nil, nil)
}

// NewPrefixIterator returns an iterator over keys with the given prefix
func (l *LevelDB) NewPrefixIterator(prefix []byte) iterator.Iterator {
	return l.conn.NewIterator(util.BytesPrefix(prefix), nil)
}
