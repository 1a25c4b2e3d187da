package permission

import (
	"context"
	"fmt"
)

// Filter is the read predicate of a set of identities. The zero Filter
// admits nothing.
type Filter struct { // A
	unrestricted bool
	owners       map[string]struct{}
	identities   map[string]struct{}
	heads        map[string]struct{}
}

// ReadableBy builds the predicate an object must pass to be readable by
// any of ids. An admin among ids lifts every restriction. Anonymous
// identities are ignored.
func (g *Graph) ReadableBy( // A
	ctx context.Context,
	ids ...Identity,
) (*Filter, error) {
	f := &Filter{
		owners:     make(map[string]struct{}),
		identities: make(map[string]struct{}),
		heads:      make(map[string]struct{}),
	}
	for _, id := range ids {
		if id.IsAdmin && !id.Anonymous() {
			f.unrestricted = true
			return f, nil
		}
	}

	var uuidList []string
	for _, id := range ids {
		if id.Anonymous() {
			continue
		}
		f.identities[id.UUID] = struct{}{}
		f.owners[id.UUID] = struct{}{}
		uuidList = append(uuidList, id.UUID)
		groups, err := g.GroupsICan(ctx, id, LevelRead)
		if err != nil {
			return nil, err
		}
		for _, group := range groups {
			if _, seen := f.owners[group]; !seen {
				f.owners[group] = struct{}{}
				uuidList = append(uuidList, group)
			}
		}
	}
	if len(uuidList) == 0 {
		return f, nil
	}

	links, err := g.links.PermissionLinksFrom(ctx, uuidList)
	if err != nil {
		return nil, fmt.Errorf("permission links from %v: %w", uuidList, err)
	}
	for _, l := range links {
		if l.LinkClass == LinkClassPermission {
			f.heads[l.HeadUUID] = struct{}{}
		}
	}
	return f, nil
}

// Unrestricted reports whether the filter admits everything.
func (f *Filter) Unrestricted() bool { // A
	return f != nil && f.unrestricted
}

// Allows reports whether obj is owned by one of the identities or a
// group they can read, is itself one of the identities, or is the head
// of a permission link from any of those.
func (f *Filter) Allows(obj Object) bool { // A
	if f == nil || obj == nil {
		return false
	}
	if f.unrestricted {
		return true
	}
	if _, ok := f.owners[obj.ObjectOwnerUUID()]; ok {
		return true
	}
	if _, ok := f.identities[obj.ObjectUUID()]; ok {
		return true
	}
	_, ok := f.heads[obj.ObjectUUID()]
	return ok
}

// AllowsLink is Allows for links, which are also readable when they are
// permission or resources links touching one of the identities.
func (f *Filter) AllowsLink(l Link) bool { // A
	if f.Allows(l) {
		return true
	}
	if f == nil || l.LinkClass != LinkClassPermission && l.LinkClass != LinkClassResources {
		return false
	}
	_, head := f.identities[l.HeadUUID]
	_, tail := f.identities[l.TailUUID]
	return head || tail
}

// Select returns the objects of objs that f allows, in order.
func Select[T Object](f *Filter, objs []T) []T { // A
	out := make([]T, 0, len(objs))
	for _, o := range objs {
		if f.Allows(o) {
			out = append(out, o)
		}
	}
	return out
}
