package keyValStore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/i5heu/ouroboros-keep/pkg/permission"
)

var (
	linkPrefix          = []byte("l/")
	permissionTailIndex = []byte("lt/")
	headIndex           = []byte("lh/")
	ownerPrefix         = []byte("o/")
)

func prefixed(prefix []byte, parts ...string) []byte { // A
	key := append([]byte{}, prefix...)
	for i, p := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, p...)
	}
	return key
}

// PutLink stores link and maintains the tail and head indexes. Only
// permission links are indexed by tail.
func (k *KeyValStore) PutLink(ctx context.Context, link permission.Link) error { // A
	if link.UUID == "" {
		return errors.New("link has no uuid")
	}
	raw, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link %s: %w", link.UUID, err)
	}

	return k.update(ctx, func(txn *badger.Txn) error {
		old, err := getLink(txn, link.UUID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			if err := deleteLinkIndexes(txn, old); err != nil {
				return err
			}
		}
		if err := txn.Set(prefixed(linkPrefix, link.UUID), raw); err != nil {
			return err
		}
		if link.LinkClass == permission.LinkClassPermission {
			if err := txn.Set(prefixed(permissionTailIndex, link.TailUUID, link.UUID), nil); err != nil {
				return err
			}
		}
		return txn.Set(prefixed(headIndex, link.HeadUUID, link.UUID), nil)
	})
}

func deleteLinkIndexes(txn *badger.Txn, link permission.Link) error { // A
	if link.LinkClass == permission.LinkClassPermission {
		if err := txn.Delete(prefixed(permissionTailIndex, link.TailUUID, link.UUID)); err != nil {
			return err
		}
	}
	return txn.Delete(prefixed(headIndex, link.HeadUUID, link.UUID))
}

func getLink(txn *badger.Txn, uuid string) (permission.Link, error) { // A
	raw, err := get(txn, prefixed(linkPrefix, uuid))
	if err != nil {
		return permission.Link{}, err
	}
	var link permission.Link
	if err := json.Unmarshal(raw, &link); err != nil {
		return permission.Link{}, fmt.Errorf("decode link %s: %w", uuid, err)
	}
	return link, nil
}

// GetLink returns the link with the given uuid.
func (k *KeyValStore) GetLink(ctx context.Context, uuid string) (permission.Link, error) { // A
	var link permission.Link
	err := k.view(ctx, func(txn *badger.Txn) error {
		var err error
		link, err = getLink(txn, uuid)
		return err
	})
	if err != nil {
		return permission.Link{}, fmt.Errorf("get link %s: %w", uuid, err)
	}
	return link, nil
}

// DeleteLink removes a link. It returns the deleted link so callers can
// tell whether permissions changed.
func (k *KeyValStore) DeleteLink(ctx context.Context, uuid string) (permission.Link, error) { // A
	var old permission.Link
	err := k.update(ctx, func(txn *badger.Txn) error {
		var err error
		old, err = getLink(txn, uuid)
		if err != nil {
			return err
		}
		if err := deleteLinkIndexes(txn, old); err != nil {
			return err
		}
		return txn.Delete(prefixed(linkPrefix, uuid))
	})
	if err != nil {
		return permission.Link{}, fmt.Errorf("delete link %s: %w", uuid, err)
	}
	return old, nil
}

// PermissionLinksFrom returns the permission links whose tail is one of
// tails.
func (k *KeyValStore) PermissionLinksFrom(ctx context.Context, tails []string) ([]permission.Link, error) { // A
	var out []permission.Link
	err := k.view(ctx, func(txn *badger.Txn) error {
		for _, tail := range tails {
			for _, uuid := range keysWithPrefix(txn, prefixed(permissionTailIndex, tail, "")) {
				link, err := getLink(txn, uuid)
				if err != nil {
					return err
				}
				out = append(out, link)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("permission links: %w", err)
	}
	return out, nil
}

// LinksTo returns every link whose head is head.
func (k *KeyValStore) LinksTo(ctx context.Context, head string) ([]permission.Link, error) { // A
	var out []permission.Link
	err := k.view(ctx, func(txn *badger.Txn) error {
		for _, uuid := range keysWithPrefix(txn, prefixed(headIndex, head, "")) {
			link, err := getLink(txn, uuid)
			if err != nil {
				return err
			}
			out = append(out, link)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("links to %s: %w", head, err)
	}
	return out, nil
}

// PutObject records the owner of a user, group or other owned object.
func (k *KeyValStore) PutObject(ctx context.Context, uuid, owner string) error { // A
	return k.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(prefixed(ownerPrefix, uuid), []byte(owner))
	})
}

// OwnerOf returns the owner recorded by PutObject, or the owner of a
// stored collection or link.
func (k *KeyValStore) OwnerOf(ctx context.Context, uuid string) (string, error) { // A
	var owner string
	err := k.view(ctx, func(txn *badger.Txn) error {
		raw, err := get(txn, prefixed(ownerPrefix, uuid))
		if err == nil {
			owner = string(raw)
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		switch permission.KindOf(uuid) {
		case permission.KindCollection:
			rec, err := k.getCollection(txn, uuid)
			if err != nil {
				return err
			}
			owner = rec.OwnerUUID
			return nil
		case permission.KindLink:
			link, err := getLink(txn, uuid)
			if err != nil {
				return err
			}
			owner = link.OwnerUUID
			return nil
		default:
			return ErrNotFound
		}
	})
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", uuid, err)
	}
	return owner, nil
}
