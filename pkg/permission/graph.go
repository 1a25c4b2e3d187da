package permission

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

const (
	logKeyIdentity = "identity"
	logKeyObject   = "object"
	logKeyOwner    = "owner"
)

// Graph evaluates permissions over the links supplied by a LinkSource.
type Graph struct { // A
	links  LinkSource
	owners OwnerSource
	cache  *Cache
	logger *slog.Logger
}

// NewGraph creates a Graph. owners is used to find the owner of a target
// given only by identifier and may be nil. A nil cache disables caching.
func NewGraph( // A
	links LinkSource,
	owners OwnerSource,
	cache *Cache,
	logger *slog.Logger,
) *Graph {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Graph{
		links:  links,
		owners: owners,
		cache:  cache,
		logger: logger,
	}
}

// Cache returns the cache the graph was built with.
func (g *Graph) Cache() *Cache { // A
	return g.cache
}

// groupPermissions returns the level uuid holds on every group reachable
// from it over permission links. A path grants the lowest level along
// it; of several paths the strongest wins.
func (g *Graph) groupPermissions( // A
	ctx context.Context,
	uuid string,
) (map[string]Level, error) {
	if g.cache != nil {
		if perms, ok := g.cache.get(uuid); ok {
			return perms, nil
		}
	}

	perms := make(map[string]Level)
	reach := map[string]Level{uuid: LevelManage}
	frontier := []string{uuid}
	for len(frontier) > 0 {
		links, err := g.links.PermissionLinksFrom(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("permission links from %v: %w", frontier, err)
		}
		frontier = frontier[:0:0]
		for _, l := range links {
			if l.HeadKind() != KindGroup {
				continue
			}
			lvl := minLevel(reach[l.TailUUID], l.Level())
			if lvl <= perms[l.HeadUUID] {
				continue
			}
			perms[l.HeadUUID] = lvl
			if l.HeadUUID == uuid {
				continue
			}
			reach[l.HeadUUID] = lvl
			frontier = append(frontier, l.HeadUUID)
		}
	}

	if g.cache != nil {
		g.cache.put(uuid, perms)
	}
	return perms, nil
}

// GroupsICan returns, sorted, the groups on which id holds at least
// level.
func (g *Graph) GroupsICan( // A
	ctx context.Context,
	id Identity,
	level Level,
) ([]string, error) {
	if id.Anonymous() {
		return nil, nil
	}
	perms, err := g.groupPermissions(ctx, id.UUID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(perms))
	for group, lvl := range perms {
		if lvl >= level {
			out = append(out, group)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CanRead reports whether id may read obj.
func (g *Graph) CanRead( // A
	ctx context.Context,
	id Identity,
	obj Object,
) (bool, error) {
	return g.can(ctx, id, obj, LevelRead)
}

// CanWrite reports whether id may modify obj.
func (g *Graph) CanWrite( // A
	ctx context.Context,
	id Identity,
	obj Object,
) (bool, error) {
	return g.can(ctx, id, obj, LevelWrite)
}

// CanManage reports whether id may grant permissions on obj.
func (g *Graph) CanManage( // A
	ctx context.Context,
	id Identity,
	obj Object,
) (bool, error) {
	return g.can(ctx, id, obj, LevelManage)
}

func (g *Graph) can( // A
	ctx context.Context,
	id Identity,
	obj Object,
	level Level,
) (bool, error) {
	if id.Anonymous() || obj == nil {
		return false, nil
	}
	if id.IsAdmin {
		return true, nil
	}
	target := obj.ObjectUUID()
	if target == id.UUID {
		return true, nil
	}
	perms, err := g.groupPermissions(ctx, id.UUID)
	if err != nil {
		return false, err
	}
	if perms[target] >= level {
		return true, nil
	}

	owner := obj.ObjectOwnerUUID()
	if owner == "" && g.owners != nil && target != "" {
		if o, err := g.owners.OwnerOf(ctx, target); err == nil {
			owner = o
		}
	}
	if owner != "" {
		if owner == id.UUID || perms[owner] >= level {
			return true, nil
		}
	}

	tails := []string{id.UUID}
	for group, lvl := range perms {
		if lvl >= level {
			tails = append(tails, group)
		}
	}
	links, err := g.links.PermissionLinksFrom(ctx, tails)
	if err != nil {
		return false, fmt.Errorf("permission links from %v: %w", tails, err)
	}
	for _, l := range links {
		if l.HeadUUID == target && l.Level() >= level {
			return true, nil
		}
	}
	return false, nil
}

// EnsureOwnerChangePermitted checks that id may save obj with its
// current owner. Assigning an owner requires being that owner or having
// write permission on it; changing an existing object additionally
// requires the same on the previous owner.
func (g *Graph) EnsureOwnerChangePermitted( // A
	ctx context.Context,
	id Identity,
	obj Object,
	previousOwner string,
	isNew bool,
) error {
	if id.Anonymous() {
		return Denied(ReasonAnonymous, obj.ObjectUUID(), "")
	}
	owner := obj.ObjectOwnerUUID()
	if isNew || owner != previousOwner {
		ok, err := g.ownerWritable(ctx, id, owner)
		if err != nil {
			return err
		}
		if !ok {
			g.logger.WarnContext(ctx, "owner change refused",
				logKeyIdentity, id.UUID,
				logKeyObject, obj.ObjectUUID(),
				logKeyOwner, owner,
			)
			return Denied(ReasonNotPermitted, owner, id.UUID)
		}
	}
	if isNew || id.UUID == obj.ObjectUUID() {
		return nil
	}
	ok, err := g.ownerWritable(ctx, id, previousOwner)
	if err != nil {
		return err
	}
	if !ok {
		g.logger.WarnContext(ctx, "modification refused",
			logKeyIdentity, id.UUID,
			logKeyObject, obj.ObjectUUID(),
			logKeyOwner, previousOwner,
		)
		return Denied(ReasonNotPermitted, obj.ObjectUUID(), id.UUID)
	}
	return nil
}

func (g *Graph) ownerWritable( // A
	ctx context.Context,
	id Identity,
	owner string,
) (bool, error) {
	if owner == id.UUID {
		return true, nil
	}
	return g.CanWrite(ctx, id, Ref{UUID: owner})
}

// EnsurePermissionToSave rejects anonymous and inactive callers. Admins
// pass regardless of their active flag.
func EnsurePermissionToSave(id Identity, subject string) error { // A
	if id.Anonymous() {
		return Denied(ReasonAnonymous, subject, "")
	}
	if !id.IsActive && !id.IsAdmin {
		return Denied(ReasonInactive, subject, id.UUID)
	}
	return nil
}

// PermissionToAttach checks that id may create or update link. Only
// permission links are restricted: they need admin rights or manage
// permission on head.
func (g *Graph) PermissionToAttach( // A
	ctx context.Context,
	id Identity,
	link Link,
	head Object,
) error {
	if id.Anonymous() {
		return Denied(ReasonAnonymous, link.HeadUUID, "")
	}
	if link.LinkClass != LinkClassPermission || id.IsAdmin {
		return nil
	}
	if head == nil {
		head = Ref{UUID: link.HeadUUID}
	}
	ok, err := g.CanManage(ctx, id, head)
	if err != nil {
		return err
	}
	if !ok {
		return Denied(ReasonNotPermitted, link.HeadUUID, id.UUID)
	}
	return nil
}

// EnsureOwnershipPathLeadsToUser follows owner links from obj until it
// reaches a user. It fails when an owner cannot be resolved or the chain
// loops. It does nothing unless ownerChanged, which callers set for new
// objects and owner changes.
func EnsureOwnershipPathLeadsToUser( // A
	ctx context.Context,
	owners OwnerSource,
	obj Object,
	ownerChanged bool,
) error {
	if !ownerChanged {
		return nil
	}
	uuid, owner := obj.ObjectUUID(), obj.ObjectOwnerUUID()
	inPath := map[string]bool{owner: true, uuid: true}
	x := owner
	for KindOf(x) != KindUser {
		if x == uuid {
			// Test for cycles with the new owner rather than the stored one.
			x = owner
		} else {
			next, err := owners.OwnerOf(ctx, x)
			if err != nil {
				return &OwnershipError{
					UUID:      uuid,
					OwnerUUID: owner,
					Err:       fmt.Errorf("%w: %w", ErrNotOwnedByUser, err),
				}
			}
			x = next
		}
		if inPath[x] {
			cause := ErrOwnershipCycle
			if x == owner {
				cause = ErrWouldCreateCycle
			}
			return &OwnershipError{UUID: uuid, OwnerUUID: owner, Err: cause}
		}
		inPath[x] = true
	}
	return nil
}
