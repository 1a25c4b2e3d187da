package keyValStore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/i5heu/ouroboros-keep/pkg/collection"
)

var (
	collectionPrefix = []byte("c/")
	pdhIndexPrefix   = []byte("p/")
)

func collectionKey(uuid string) []byte { // A
	return append(append([]byte{}, collectionPrefix...), uuid...)
}

func pdhIndexPrefixFor(pdh string) []byte { // A
	return append(append(append([]byte{}, pdhIndexPrefix...), pdh...), '/')
}

func pdhIndexKey(pdh, uuid string) []byte { // A
	return append(pdhIndexPrefixFor(pdh), uuid...)
}

// PutCollection writes rec and its portable data hash index entry in one
// transaction. A concurrent write to the same collection fails with
// badger.ErrConflict.
func (k *KeyValStore) PutCollection(ctx context.Context, rec collection.Record) error { // A
	if rec.UUID == "" {
		return errors.New("collection record has no uuid")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", rec.UUID, err)
	}
	value, err := k.codec.encode(raw)
	if err != nil {
		return fmt.Errorf("compress collection %s: %w", rec.UUID, err)
	}

	return k.update(ctx, func(txn *badger.Txn) error {
		old, err := k.getCollection(txn, rec.UUID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case old.PortableDataHash != rec.PortableDataHash:
			if err := txn.Delete(pdhIndexKey(old.PortableDataHash, rec.UUID)); err != nil {
				return err
			}
		}
		if err := txn.Set(collectionKey(rec.UUID), value); err != nil {
			return err
		}
		return txn.Set(pdhIndexKey(rec.PortableDataHash, rec.UUID), nil)
	})
}

func (k *KeyValStore) getCollection(txn *badger.Txn, uuid string) (collection.Record, error) { // A
	value, err := get(txn, collectionKey(uuid))
	if err != nil {
		return collection.Record{}, err
	}
	raw, err := k.codec.decode(value)
	if err != nil {
		return collection.Record{}, fmt.Errorf("collection %s: %w", uuid, err)
	}
	var rec collection.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return collection.Record{}, fmt.Errorf("decode collection %s: %w", uuid, err)
	}
	return rec, nil
}

// GetCollection returns the collection with the given uuid.
func (k *KeyValStore) GetCollection(ctx context.Context, uuid string) (collection.Record, error) { // A
	var rec collection.Record
	err := k.view(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = k.getCollection(txn, uuid)
		return err
	})
	if err != nil {
		return collection.Record{}, fmt.Errorf("get collection %s: %w", uuid, err)
	}
	return rec, nil
}

// FindByPortableDataHash returns every collection with the given
// portable data hash, ordered by uuid.
func (k *KeyValStore) FindByPortableDataHash(ctx context.Context, pdh string) ([]collection.Record, error) { // A
	var out []collection.Record
	err := k.view(ctx, func(txn *badger.Txn) error {
		uuids := keysWithPrefix(txn, pdhIndexPrefixFor(pdh))
		sort.Strings(uuids)
		for _, uuid := range uuids {
			rec, err := k.getCollection(txn, uuid)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find collections by %s: %w", pdh, err)
	}
	return out, nil
}

// DeleteCollection removes the collection and its index entry.
func (k *KeyValStore) DeleteCollection(ctx context.Context, uuid string) error { // A
	return k.update(ctx, func(txn *badger.Txn) error {
		old, err := k.getCollection(txn, uuid)
		if err != nil {
			return fmt.Errorf("delete collection %s: %w", uuid, err)
		}
		if err := txn.Delete(pdhIndexKey(old.PortableDataHash, uuid)); err != nil {
			return err
		}
		return txn.Delete(collectionKey(uuid))
	})
}

// ListCollections returns every collection ordered by uuid.
func (k *KeyValStore) ListCollections(ctx context.Context) ([]collection.Record, error) { // A
	var out []collection.Record
	err := k.view(ctx, func(txn *badger.Txn) error {
		values, err := valuesWithPrefix(txn, collectionPrefix)
		if err != nil {
			return err
		}
		for _, value := range values {
			raw, err := k.codec.decode(value)
			if err != nil {
				return err
			}
			var rec collection.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return out, nil
}
