package keep

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/i5heu/ouroboros-keep/pkg/collection"
	"github.com/i5heu/ouroboros-keep/pkg/locator"
	"github.com/i5heu/ouroboros-keep/pkg/permission"
	"github.com/i5heu/ouroboros-keep/pkg/properties"
)

// CollectionInput is the content of a new collection. PortableDataHash
// is optional; when set it must match the manifest.
type CollectionInput struct {
	OwnerUUID        string
	Name             string
	Description      string
	Properties       properties.Map
	ManifestText     string
	PortableDataHash string
}

// CollectionPatch lists the attributes an update changes. Nil fields are
// left alone.
type CollectionPatch struct {
	OwnerUUID        *string
	Name             *string
	Description      *string
	Properties       properties.Map
	ManifestText     *string
	PortableDataHash *string
}

func requester(id permission.Identity, apiToken string) collection.Requester { // A
	return collection.Requester{UserUUID: id.UUID, IsAdmin: id.IsAdmin, APIToken: apiToken}
}

// CreateCollection checks and stores a new collection owned by
// in.OwnerUUID, or by the caller when that is empty. apiToken is the
// token the manifest's signatures were issued for.
func (k *Keep) CreateCollection( // A
	ctx context.Context,
	id permission.Identity,
	apiToken string,
	in CollectionInput,
) (*collection.Collection, error) {
	done, err := k.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, ""); err != nil {
		return nil, err
	}

	c := collection.New(in.ManifestText)
	c.UUID, err = permission.NewUUID(k.config.UUIDPrefix, permission.KindCollection)
	if err != nil {
		return nil, err
	}
	c.OwnerUUID = in.OwnerUUID
	if c.OwnerUUID == "" {
		c.OwnerUUID = id.UUID
	}
	c.Name, c.Description = in.Name, in.Description
	if in.Properties != nil {
		c.Properties = in.Properties.Clone()
	}
	if in.PortableDataHash != "" {
		c.SetPortableDataHash(in.PortableDataHash)
	}

	if err := k.graph.EnsureOwnerChangePermitted(ctx, id, c, "", true); err != nil {
		return nil, err
	}
	if err := permission.EnsureOwnershipPathLeadsToUser(ctx, k.store, c, true); err != nil {
		return nil, err
	}
	if err := collection.Prepare(ctx, c, requester(id, apiToken), k.policy); err != nil {
		return nil, err
	}

	now := k.now()
	c.CreatedAt, c.ModifiedAt, c.ModifiedByUserUUID = now, now, id.UUID
	if err := k.save(ctx, c); err != nil {
		return nil, err
	}
	k.log.InfoContext(ctx, "collection created",
		logKeyUUID, c.UUID,
		logKeyUser, id.UUID,
		logKeyPDH, c.PortableDataHash(),
	)
	return c, nil
}

// UpdateCollection applies patch to the collection uuid. The caller must
// be able to write the current owner, and the new owner if it changes.
func (k *Keep) UpdateCollection( // A
	ctx context.Context,
	id permission.Identity,
	apiToken string,
	uuid string,
	patch CollectionPatch,
) (*collection.Collection, error) {
	done, err := k.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, uuid); err != nil {
		return nil, err
	}
	rec, err := k.store.GetCollection(ctx, uuid)
	if err != nil {
		return nil, err
	}
	c := collection.Load(rec)
	previousOwner := c.OwnerUUID

	if patch.OwnerUUID != nil {
		c.OwnerUUID = *patch.OwnerUUID
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Properties != nil {
		c.Properties = patch.Properties.Clone()
	}
	if patch.ManifestText != nil {
		c.SetManifestText(*patch.ManifestText)
	}
	if patch.PortableDataHash != nil {
		c.SetPortableDataHash(*patch.PortableDataHash)
	}

	if err := k.graph.EnsureOwnerChangePermitted(ctx, id, c, previousOwner, false); err != nil {
		return nil, err
	}
	ownerChanged := c.OwnerUUID != previousOwner
	if err := permission.EnsureOwnershipPathLeadsToUser(ctx, k.store, c, ownerChanged); err != nil {
		return nil, err
	}
	if err := collection.Prepare(ctx, c, requester(id, apiToken), k.policy); err != nil {
		return nil, err
	}

	c.ModifiedAt, c.ModifiedByUserUUID = k.now(), id.UUID
	if err := k.save(ctx, c); err != nil {
		return nil, err
	}
	if ownerChanged {
		k.log.InfoContext(ctx, "collection owner changed",
			logKeyUUID, c.UUID,
			logKeyUser, id.UUID,
		)
	}
	return c, nil
}

func (k *Keep) save(ctx context.Context, c *collection.Collection) error { // A
	rec := c.Record()
	if err := k.store.PutCollection(ctx, rec); err != nil {
		return fmt.Errorf("store collection %s: %w", c.UUID, err)
	}
	c.MarkPersisted()
	if k.index == nil {
		return nil
	}
	if err := k.index.IndexCollection(rec); err != nil {
		k.log.WarnContext(ctx, "indexing collection failed",
			logKeyUUID, c.UUID,
			logKeyError, err,
		)
	}
	return nil
}

// GetCollection returns the collection ref names together with its
// manifest signed for apiToken. ref is a collection uuid or a portable
// data hash with optional hints; a hash resolves to the oldest readable
// collection with that content.
func (k *Keep) GetCollection( // A
	ctx context.Context,
	id permission.Identity,
	apiToken string,
	ref string,
) (*collection.Collection, string, error) {
	done, err := k.begin()
	if err != nil {
		return nil, "", err
	}
	defer done()

	c, err := k.readableCollection(ctx, id, ref)
	if err != nil {
		return nil, "", err
	}
	signed, err := c.SignedManifestText(k.signer, apiToken)
	if err != nil {
		return nil, "", fmt.Errorf("sign manifest of %s: %w", c.UUID, err)
	}
	return c, signed, nil
}

func (k *Keep) readableCollection( // A
	ctx context.Context,
	id permission.Identity,
	ref string,
) (*collection.Collection, error) {
	filter, err := k.graph.ReadableBy(ctx, id)
	if err != nil {
		return nil, err
	}

	if !collection.LooksLikeReference(ref) {
		rec, err := k.store.GetCollection(ctx, ref)
		if err != nil {
			return nil, err
		}
		c := collection.Load(rec)
		if !filter.Allows(c) {
			return nil, permission.Denied(permission.ReasonNotPermitted, ref, id.UUID)
		}
		return c, nil
	}

	pdh, err := collection.NormalizeUUID(ref)
	if err != nil {
		return nil, err
	}
	recs, err := k.store.FindByPortableDataHash(ctx, pdh)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pdh)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	for _, rec := range recs {
		c := collection.Load(rec)
		if filter.Allows(c) {
			return c, nil
		}
	}
	return nil, permission.Denied(permission.ReasonNotPermitted, pdh, id.UUID)
}

// SignBlock signs loc for apiToken if the caller can read a collection
// identified by collectionRef whose manifest contains the block.
func (k *Keep) SignBlock( // A
	ctx context.Context,
	id permission.Identity,
	apiToken string,
	collectionRef string,
	loc string,
) (string, error) {
	done, err := k.begin()
	if err != nil {
		return "", err
	}
	defer done()

	want, err := locator.Parse(loc)
	if err != nil {
		return "", err
	}
	c, err := k.readableCollection(ctx, id, collectionRef)
	if err != nil {
		return "", err
	}
	for stream := range c.Manifest().Streams() {
		for _, tok := range stream.Blocks {
			have, err := locator.Parse(tok)
			if err != nil || have.Hash() != want.Hash() {
				continue
			}
			return k.signer.Sign(have.WithoutSignature().String(), apiToken)
		}
	}
	return "", fmt.Errorf("%w: block %s in %s", ErrNotFound, want.Hash(), collectionRef)
}

// DeleteCollection removes a collection the caller can write.
func (k *Keep) DeleteCollection( // A
	ctx context.Context,
	id permission.Identity,
	uuid string,
) error {
	done, err := k.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, uuid); err != nil {
		return err
	}
	rec, err := k.store.GetCollection(ctx, uuid)
	if err != nil {
		return err
	}
	if err := k.ensureWritable(ctx, id, collection.Load(rec)); err != nil {
		return err
	}
	if err := k.store.DeleteCollection(ctx, uuid); err != nil {
		return err
	}
	if k.index == nil {
		return nil
	}
	if err := k.index.Remove(uuid); err != nil {
		k.log.WarnContext(ctx, "removing collection from index failed",
			logKeyUUID, uuid,
			logKeyError, err,
		)
	}
	return nil
}

// ListReadableCollections returns every collection id can read, ordered
// by uuid.
func (k *Keep) ListReadableCollections( // A
	ctx context.Context,
	id permission.Identity,
) ([]*collection.Collection, error) {
	done, err := k.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	filter, err := k.graph.ReadableBy(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := k.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]*collection.Collection, 0, len(recs))
	for _, rec := range recs {
		all = append(all, collection.Load(rec))
	}
	return permission.Select(filter, all), nil
}

// SearchCollections runs query against the index and returns the
// readable hits in rank order.
func (k *Keep) SearchCollections( // A
	ctx context.Context,
	id permission.Identity,
	query string,
	limit int,
) ([]*collection.Collection, error) {
	done, err := k.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if k.index == nil {
		return nil, ErrIndexDisabled
	}
	filter, err := k.graph.ReadableBy(ctx, id)
	if err != nil {
		return nil, err
	}
	uuids, err := k.index.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]*collection.Collection, 0, len(uuids))
	for _, uuid := range uuids {
		rec, err := k.store.GetCollection(ctx, uuid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c := collection.Load(rec); filter.Allows(c) {
			out = append(out, c)
		}
	}
	return out, nil
}
