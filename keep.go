/*
Package keep stores collections of content-addressed blocks and decides
who may read and change them.

A Keep instance ties together the badger store, the permission graph and
its cache, the block signer and the optional search index.
*/
package keep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-keep/internal/keyValStore"
	"github.com/i5heu/ouroboros-keep/pkg/auth"
	"github.com/i5heu/ouroboros-keep/pkg/collection"
	"github.com/i5heu/ouroboros-keep/pkg/index"
	"github.com/i5heu/ouroboros-keep/pkg/permission"
)

const (
	logKeyUUID     = "uuid"
	logKeyUser     = "user"
	logKeyPDH      = "portableDataHash"
	logKeyLinkKind = "linkClass"
	logKeyError    = "error"
)

var (
	// ErrNotFound is returned when a collection, link or object does not
	// exist or is not visible to the caller.
	ErrNotFound = keyValStore.ErrNotFound

	ErrClosed        = errors.New("keep: closed")
	ErrIndexDisabled = errors.New("keep: search index disabled")
)

// Keep is the library handle.
type Keep struct {
	log    *slog.Logger
	config Config

	store  *keyValStore.KeyValStore
	index  *index.Indexer
	cache  *permission.Cache
	graph  *permission.Graph
	signer auth.Signer
	policy collection.Policy
	clock  auth.Clock

	closed    bool
	closeOnce sync.Once
	mu        sync.RWMutex
}

// New opens the store and, unless disabled, builds the search index from
// the stored collections.
func New(conf Config) (*Keep, error) { // A
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	if conf.Clock == nil {
		conf.Clock = auth.SystemClock()
	}
	if conf.UUIDPrefix == "" {
		conf.UUIDPrefix = "zzzzz"
	}
	if len(conf.UUIDPrefix) != 5 {
		return nil, fmt.Errorf("uuid prefix %q must be 5 characters", conf.UUIDPrefix)
	}
	if !conf.InMemory && len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.StoreLogger == nil {
		conf.StoreLogger = logrus.New()
		conf.StoreLogger.SetLevel(logrus.WarnLevel)
	}

	store, err := keyValStore.Open(keyValStore.StoreConfig{
		Paths:         conf.Paths,
		MinimumFreeGB: conf.MinimumFreeGB,
		InMemory:      conf.InMemory,
		Compression:   conf.Compression,
		Logger:        conf.StoreLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	k := &Keep{
		log:    conf.Logger,
		config: conf,
		store:  store,
		cache:  permission.NewCache(),
		signer: auth.NewSigner(conf.SigningKey, conf.SignatureTTL, conf.Clock),
		clock:  conf.Clock,
	}
	k.graph = permission.NewGraph(store, store, k.cache, conf.Logger)
	k.policy = collection.Policy{
		Key:            conf.SigningKey,
		PermitUnsigned: conf.PermitUnsignedManifest,
		Clock:          conf.Clock,
		Logger:         conf.Logger,
	}

	if !conf.DisableIndex {
		if err := k.buildIndex(context.Background()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return k, nil
}

func (k *Keep) buildIndex(ctx context.Context) error { // A
	idx, err := index.NewIndexer(k.log)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	recs, err := k.store.ListCollections(ctx)
	if err != nil {
		_ = idx.Close()
		return fmt.Errorf("load collections for index: %w", err)
	}
	idx.ReindexAll(recs)
	k.index = idx
	return nil
}

// Close releases the store and the index. It is safe to call more than
// once.
func (k *Keep) Close() error { // A
	var err error
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		k.mu.Unlock()
		if k.index != nil {
			err = errors.Join(err, k.index.Close())
		}
		err = errors.Join(err, k.store.Close())
	})
	return err
}

// Signer returns the block signer.
func (k *Keep) Signer() auth.Signer { // A
	return k.signer
}

// PermissionCache returns the cache of the permission graph. Callers that
// change permission links behind Keep's back must invalidate it.
func (k *Keep) PermissionCache() *permission.Cache { // A
	return k.cache
}

// Graph returns the permission graph.
func (k *Keep) Graph() *permission.Graph { // A
	return k.graph
}

func (k *Keep) begin() (func(), error) { // A
	k.mu.RLock()
	if k.closed {
		k.mu.RUnlock()
		return nil, ErrClosed
	}
	return k.mu.RUnlock, nil
}

func (k *Keep) now() time.Time { // A
	return k.clock.Now().UTC()
}

// object resolves uuid to an Object carrying its stored owner. Unknown
// objects get an empty owner.
func (k *Keep) object(ctx context.Context, uuid string) permission.Object { // A
	owner, err := k.store.OwnerOf(ctx, uuid)
	if err != nil {
		owner = ""
	}
	return permission.Ref{UUID: uuid, OwnerUUID: owner}
}

// RegisterUser records a user. Only admins may do so. Users are owned by
// the system user.
func (k *Keep) RegisterUser(ctx context.Context, id permission.Identity, uuid string) error { // A
	done, err := k.begin()
	if err != nil {
		return err
	}
	defer done()

	if !id.IsAdmin {
		return permission.Denied(permission.ReasonNotPermitted, uuid, id.UUID)
	}
	if permission.KindOf(uuid) != permission.KindUser {
		return fmt.Errorf("%s is not a user uuid", uuid)
	}
	return k.store.PutObject(ctx, uuid, permission.SystemUserUUID(k.config.UUIDPrefix))
}

// CreateGroup creates a group owned by owner, or by the caller when owner
// is empty, and returns its uuid.
func (k *Keep) CreateGroup(ctx context.Context, id permission.Identity, owner string) (string, error) { // A
	done, err := k.begin()
	if err != nil {
		return "", err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, ""); err != nil {
		return "", err
	}
	if owner == "" {
		owner = id.UUID
	}
	uuid, err := permission.NewUUID(k.config.UUIDPrefix, permission.KindGroup)
	if err != nil {
		return "", err
	}
	obj := permission.Ref{UUID: uuid, OwnerUUID: owner}
	if err := k.graph.EnsureOwnerChangePermitted(ctx, id, obj, "", true); err != nil {
		return "", err
	}
	if err := permission.EnsureOwnershipPathLeadsToUser(ctx, k.store, obj, true); err != nil {
		return "", err
	}
	if err := k.store.PutObject(ctx, uuid, owner); err != nil {
		return "", err
	}
	return uuid, nil
}

// ChangeOwner moves a collection, group or user to a new owner.
func (k *Keep) ChangeOwner( // A
	ctx context.Context,
	id permission.Identity,
	uuid string,
	newOwner string,
) error {
	if permission.KindOf(uuid) == permission.KindCollection {
		_, err := k.UpdateCollection(ctx, id, "", uuid, CollectionPatch{OwnerUUID: &newOwner})
		return err
	}

	done, err := k.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, uuid); err != nil {
		return err
	}
	previous, err := k.store.OwnerOf(ctx, uuid)
	if err != nil {
		return err
	}
	obj := permission.Ref{UUID: uuid, OwnerUUID: newOwner}
	if err := k.graph.EnsureOwnerChangePermitted(ctx, id, obj, previous, false); err != nil {
		return err
	}
	if err := permission.EnsureOwnershipPathLeadsToUser(ctx, k.store, obj, newOwner != previous); err != nil {
		return err
	}
	return k.store.PutObject(ctx, uuid, newOwner)
}
