package permission

import (
	"context"
	"errors"
	"slices"
	"sync"
)

const (
	userA   = "zzzzz-tpzed-aaaaaaaaaaaaaaa"
	userB   = "zzzzz-tpzed-bbbbbbbbbbbbbbb"
	userC   = "zzzzz-tpzed-ccccccccccccccc"
	groupX  = "zzzzz-j7d0g-xxxxxxxxxxxxxxx"
	groupY  = "zzzzz-j7d0g-yyyyyyyyyyyyyyy"
	collOne = "zzzzz-4zz18-111111111111111"
	collTwo = "zzzzz-4zz18-222222222222222"
)

var errNoOwner = errors.New("no such object")

// memLinks is an in-memory LinkSource counting its queries.
type memLinks struct {
	mu      sync.Mutex
	links   []Link
	queries int
}

func (m *memLinks) add(tail, level, head string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, Link{
		LinkClass: LinkClassPermission,
		Name:      level,
		TailUUID:  tail,
		HeadUUID:  head,
	})
}

func (m *memLinks) PermissionLinksFrom(
	_ context.Context,
	tails []string,
) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	var out []Link
	for _, l := range m.links {
		if l.LinkClass == LinkClassPermission && slices.Contains(tails, l.TailUUID) {
			out = append(out, l)
		}
	}
	return out, nil
}

type memOwners map[string]string

func (m memOwners) OwnerOf(_ context.Context, uuid string) (string, error) {
	owner, ok := m[uuid]
	if !ok {
		return "", errNoOwner
	}
	return owner, nil
}

func user(uuid string) Identity {
	return Identity{UUID: uuid, IsActive: true}
}
