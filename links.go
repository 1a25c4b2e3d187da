package keep

import (
	"context"
	"fmt"

	"github.com/i5heu/ouroboros-keep/pkg/permission"
)

// CreateLink stores link under a new uuid. Permission links need manage
// permission on their head and are owned by the system user. Name links
// are owned by their tail, other links by the caller unless they name an
// owner; either way the caller must be able to write that owner.
func (k *Keep) CreateLink( // A
	ctx context.Context,
	id permission.Identity,
	link permission.Link,
) (permission.Link, error) {
	done, err := k.begin()
	if err != nil {
		return permission.Link{}, err
	}
	defer done()

	if err := permission.EnsurePermissionToSave(id, link.HeadUUID); err != nil {
		return permission.Link{}, err
	}
	if err := link.Validate(); err != nil {
		return permission.Link{}, err
	}
	if err := k.graph.PermissionToAttach(ctx, id, link, k.object(ctx, link.HeadUUID)); err != nil {
		return permission.Link{}, err
	}

	link.UUID, err = permission.NewUUID(k.config.UUIDPrefix, permission.KindLink)
	if err != nil {
		return permission.Link{}, err
	}
	switch {
	case link.LinkClass == permission.LinkClassPermission:
		link.OwnerUUID = permission.SystemUserUUID(k.config.UUIDPrefix)
	case link.LinkClass == permission.LinkClassName:
		link.OwnerUUID = link.TailUUID
	case link.OwnerUUID == "":
		link.OwnerUUID = id.UUID
	}
	if link.LinkClass != permission.LinkClassPermission {
		if err := k.graph.EnsureOwnerChangePermitted(ctx, id, link, "", true); err != nil {
			return permission.Link{}, err
		}
	}

	if err := k.store.PutLink(ctx, link); err != nil {
		return permission.Link{}, fmt.Errorf("store link: %w", err)
	}
	if link.LinkClass == permission.LinkClassPermission {
		k.cache.Invalidate()
	}
	k.log.InfoContext(ctx, "link created",
		logKeyUUID, link.UUID,
		logKeyUser, id.UUID,
		logKeyLinkKind, link.LinkClass,
	)
	return link, nil
}

// DeleteLink removes a link. Removing a permission link needs the same
// rights as creating it; other links need write permission on the link.
func (k *Keep) DeleteLink( // A
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
	link, err := k.store.GetLink(ctx, uuid)
	if err != nil {
		return err
	}
	if link.LinkClass == permission.LinkClassPermission {
		err = k.graph.PermissionToAttach(ctx, id, link, k.object(ctx, link.HeadUUID))
	} else {
		err = k.ensureWritable(ctx, id, link)
	}
	if err != nil {
		return err
	}

	if _, err := k.store.DeleteLink(ctx, uuid); err != nil {
		return err
	}
	if link.LinkClass == permission.LinkClassPermission {
		k.cache.Invalidate()
	}
	return nil
}

// LinksTo returns the links pointing at head that id can read.
func (k *Keep) LinksTo( // A
	ctx context.Context,
	id permission.Identity,
	head string,
) ([]permission.Link, error) {
	done, err := k.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	filter, err := k.graph.ReadableBy(ctx, id)
	if err != nil {
		return nil, err
	}
	links, err := k.store.LinksTo(ctx, head)
	if err != nil {
		return nil, err
	}
	out := links[:0]
	for _, l := range links {
		if filter.AllowsLink(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (k *Keep) ensureWritable(ctx context.Context, id permission.Identity, obj permission.Object) error { // A
	ok, err := k.graph.CanWrite(ctx, id, obj)
	if err != nil {
		return err
	}
	if !ok {
		return permission.Denied(permission.ReasonNotPermitted, obj.ObjectUUID(), id.UUID)
	}
	return nil
}
