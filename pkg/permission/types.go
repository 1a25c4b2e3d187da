package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-keep/pkg/properties"
)

// Link classes with special meaning to the permission graph.
const (
	LinkClassPermission = "permission"
	LinkClassResources  = "resources"
	LinkClassName       = "name"
)

// ErrInvalidLink is returned by Link.Validate.
var ErrInvalidLink = errors.New("invalid link")

// Identity is the caller on whose behalf a check runs. The zero value is
// the anonymous caller.
type Identity struct { // A
	UUID     string
	IsAdmin  bool
	IsActive bool
}

// Anonymous reports whether id carries no user.
func (id Identity) Anonymous() bool { // A
	return id.UUID == ""
}

// Object is anything with an identifier and an owner.
type Object interface { // A
	ObjectUUID() string
	ObjectOwnerUUID() string
}

// Ref is an Object given only by its identifiers.
type Ref struct { // A
	UUID      string
	OwnerUUID string
}

func (r Ref) ObjectUUID() string { // A
	return r.UUID
}

func (r Ref) ObjectOwnerUUID() string { // A
	return r.OwnerUUID
}

// Link is a directed edge from TailUUID to HeadUUID. Links of class
// "permission" grant the tail the level named by Name on the head.
type Link struct { // A
	UUID       string         `json:"uuid"`
	OwnerUUID  string         `json:"owner_uuid"`
	LinkClass  string         `json:"link_class"`
	Name       string         `json:"name"`
	TailUUID   string         `json:"tail_uuid"`
	HeadUUID   string         `json:"head_uuid"`
	Properties properties.Map `json:"properties"`
}

func (l Link) ObjectUUID() string { // A
	return l.UUID
}

func (l Link) ObjectOwnerUUID() string { // A
	return l.OwnerUUID
}

// Level returns the level a permission link grants. Links of any other
// class grant nothing.
func (l Link) Level() Level { // A
	if l.LinkClass != LinkClassPermission {
		return LevelNone
	}
	lvl, _ := ParseLevel(l.Name)
	return lvl
}

// HeadKind classifies the head identifier.
func (l Link) HeadKind() Kind { // A
	return KindOf(l.HeadUUID)
}

// TailKind classifies the tail identifier.
func (l Link) TailKind() Kind { // A
	return KindOf(l.TailUUID)
}

// Validate checks the shape of the link. Name links need a non-empty
// name and permission links a known level.
func (l Link) Validate() error { // A
	switch l.LinkClass {
	case "":
		return fmt.Errorf("%w: empty link class", ErrInvalidLink)
	case LinkClassName:
		if l.Name == "" {
			return fmt.Errorf("%w: name must be a non-empty string", ErrInvalidLink)
		}
	case LinkClassPermission:
		if _, ok := ParseLevel(l.Name); !ok {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidLink, l.Name)
		}
	}
	return nil
}

// LinkSource supplies the edges of the permission graph.
type LinkSource interface { // A
	// PermissionLinksFrom returns every permission link whose tail is in
	// tails.
	PermissionLinksFrom(ctx context.Context, tails []string) ([]Link, error)
}

// OwnerSource resolves the owner of users, groups and other owned
// objects.
type OwnerSource interface { // A
	OwnerOf(ctx context.Context, uuid string) (string, error)
}
