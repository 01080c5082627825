package storage

import (
	"github.com/coocood/badger"
	"github.com/pkg/errors"
)

// BadgerStore implements Store on top of an embedded badger database rooted
// at the node's data directory. Badger keeps keys in ascending byte order,
// which Keys relies on, and with SyncWrites every mutation is on disk before
// the call returns.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

// OpenBadger opens (creating if necessary) a badger database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.SyncWrites = true
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %s", dir)
	}
	return &BadgerStore{db: db, dir: dir}, nil
}

// Get retrieves a value by key, copying it out of the transaction.
func (b *BadgerStore) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.Value()
		if err != nil {
			return err
		}
		value = append([]byte(nil), val...)
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return value, nil
}

// Put stores a value with the given key.
func (b *BadgerStore) Put(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errors.Wrapf(err, "put %q", key)
}

// Delete removes a key-value pair. Deleting a missing key succeeds.
func (b *BadgerStore) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrapf(err, "delete %q", key)
}

// Keys returns up to limit keys in ascending byte order. It iterates with
// the default iterator options and reads only each item's key.
func (b *BadgerStore) Keys(limit int) ([]string, error) {
	keys := []string{}
	if limit <= 0 {
		return keys, nil
	}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
			if len(keys) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterate keys")
	}
	return keys, nil
}

// Close shuts the database down.
func (b *BadgerStore) Close() error {
	return errors.Wrap(b.db.Close(), "close badger")
}
