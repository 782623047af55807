package storage

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *part) GetID() string { return p.ID }

func setupTestDB(t *testing.T) (*badger.DB, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	return db, func() { db.Close() }
}

func TestBadgerStore_CRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBadgerStore(db, "part")

	require.NoError(t, store.Create(&part{ID: "p1", Name: "pTet"}))
	err := store.Create(&part{ID: "p1", Name: "dup"})
	assert.True(t, errors.Is(err, ErrExists))

	var got part
	require.NoError(t, store.Get("p1", &got))
	assert.Equal(t, "pTet", got.Name)

	got.Name = "pLac"
	require.NoError(t, store.Update(&got))

	err = store.Update(&part{ID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
	err = store.Get("missing", &got)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Create(&part{ID: "p2", Name: "gfp"}))
	var all []part
	require.NoError(t, store.List(&all))
	assert.Len(t, all, 2)

	ids, err := store.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestBadgerStore_PrefixIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	parts := NewBadgerStore(db, "part")
	partsExtra := NewBadgerStore(db, "partx")
	require.NoError(t, parts.Create(&part{ID: "a"}))
	require.NoError(t, partsExtra.Create(&part{ID: "b"}))

	var all []part
	require.NoError(t, parts.List(&all))
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
}

func TestIndex_ClaimIsAtomicWithEntity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBadgerStore(db, "part")
	names := NewIndex("part-name")

	create := func(id, name string) error {
		return db.Update(func(txn *badger.Txn) error {
			if err := names.ClaimTxn(txn, "repo1", name, id); err != nil {
				return err
			}
			return store.InsertTxn(txn, &part{ID: id, Name: name})
		})
	}

	require.NoError(t, create("p1", "pTet"))
	err := create("p2", "pTet")
	assert.True(t, errors.Is(err, ErrExists))

	// the rejected transaction left nothing behind
	var got part
	assert.True(t, errors.Is(store.Get("p2", &got), ErrNotFound))

	require.NoError(t, db.View(func(txn *badger.Txn) error {
		id, err := names.LookupTxn(txn, "repo1", "pTet")
		assert.Equal(t, "p1", id)
		return err
	}))
}
