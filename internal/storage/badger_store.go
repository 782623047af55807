// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore keeps JSON entities under "<prefix>:<id>". Every operation has
// a Txn form so several stores can mutate atomically in one transaction.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) DB() *badger.DB { return s.db }

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(s.prefix + ":" + id)
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), s.prefix+":")
}

// InsertTxn writes a new entity, failing with ErrExists if the ID is taken.
func (s *BadgerStore) InsertTxn(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	key := s.makeKey(entity.GetID())
	_, err := txn.Get(key)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	return s.setTxn(txn, key, entity)
}

// SaveTxn overwrites an existing entity, failing with ErrNotFound otherwise.
func (s *BadgerStore) SaveTxn(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	key := s.makeKey(entity.GetID())
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, entity.GetID())
	} else if err != nil {
		return err
	}

	return s.setTxn(txn, key, entity)
}

func (s *BadgerStore) setTxn(txn *badger.Txn, key []byte, entity Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) GetTxn(txn *badger.Txn, id string, entity Entity) error {
	item, err := txn.Get(s.makeKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entity)
	})
}

func (s *BadgerStore) Create(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.InsertTxn(txn, entity)
	})
}

func (s *BadgerStore) Get(id string, entity Entity) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.GetTxn(txn, id, entity)
	})
}

func (s *BadgerStore) Update(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.SaveTxn(txn, entity)
	})
}

// List decodes every entity under the prefix into results, which must be a
// pointer to a slice.
func (s *BadgerStore) List(results interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(s.prefix + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		var values []json.RawMessage
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				values = append(values, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Marshal collected values into final result
		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}

// Keys returns the IDs stored under the prefix.
func (s *BadgerStore) Keys() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(s.prefix + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			ids = append(ids, s.stripPrefix(it.Item().Key()))
		}
		return nil
	})
	return ids, err
}

// Index maps unique names to IDs under "<prefix>:<scope>/<name>".
type Index struct {
	prefix string
}

func NewIndex(prefix string) *Index {
	return &Index{prefix: prefix}
}

func (x *Index) key(scope, name string) []byte {
	return []byte(x.prefix + ":" + scope + "/" + name)
}

// ClaimTxn binds name to id within scope. ErrExists if already bound.
func (x *Index) ClaimTxn(txn *badger.Txn, scope, name, id string) error {
	key := x.key(scope, name)
	_, err := txn.Get(key)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, name)
	} else if err != badger.ErrKeyNotFound {
		return err
	}
	return txn.Set(key, []byte(id))
}

func (x *Index) LookupTxn(txn *badger.Txn, scope, name string) (string, error) {
	item, err := txn.Get(x.key(scope, name))
	if err == badger.ErrKeyNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}
