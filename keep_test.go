package keep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-keep/pkg/auth"
	"github.com/i5heu/ouroboros-keep/pkg/collection"
	"github.com/i5heu/ouroboros-keep/pkg/locator"
	"github.com/i5heu/ouroboros-keep/pkg/permission"
	"github.com/i5heu/ouroboros-keep/pkg/properties"
)

const (
	adminUUID = "zzzzz-tpzed-000000000000001"
	aliceUUID = "zzzzz-tpzed-aaaaaaaaaaaaaaa"
	bobUUID   = "zzzzz-tpzed-bbbbbbbbbbbbbbb"

	aliceToken = "alice-token"
	bobToken   = "bob-token"

	fooLocator = "acbd18db4cc2f85cedef654fccc4a4d8+3"
)

var (
	admin = permission.Identity{UUID: adminUUID, IsAdmin: true, IsActive: true}
	alice = permission.Identity{UUID: aliceUUID, IsActive: true}
	bob   = permission.Identity{UUID: bobUUID, IsActive: true}
)

// setupKeep opens an in-memory instance with a signing key and a fixed
// clock.
func setupKeep(t *testing.T, mutate ...func(*Config)) *Keep {
	t.Helper()
	conf := Config{
		InMemory:     true,
		SigningKey:   []byte("test-signing-key"),
		SignatureTTL: time.Hour,
		Clock:        auth.FixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&conf)
	}
	k, err := New(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

// signedManifest returns a one-file manifest signed for token.
func signedManifest(t *testing.T, k *Keep, token string) string {
	t.Helper()
	signed, err := k.Signer().Sign(fooLocator, token)
	require.NoError(t, err)
	return ". " + signed + " 0:3:foo.txt\n"
}

// hashWithoutSignatures is the portable data hash of text once its
// signatures are stripped.
func hashWithoutSignatures(text string) string {
	c := collection.New(text)
	collection.StripManifestText(c)
	return collection.ComputePortableDataHash(c.ManifestText())
}

func requireDenied(t *testing.T, err error, reason permission.Reason) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, permission.ErrPermissionDenied), err)
	var pd *permission.PermissionDeniedError
	require.True(t, errors.As(err, &pd), err)
	assert.Equal(t, reason, pd.Reason)
}

func TestNewRejectsBadConfig(t *testing.T) { // A
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{InMemory: true, UUIDPrefix: "toolong"})
	assert.Error(t, err)
}

func TestCloseTwice(t *testing.T) { // A
	k := setupKeep(t)
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCreateAndGetCollection(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{
		Name:         "results",
		ManifestText: signedManifest(t, k, aliceToken),
		Properties:   properties.Map{"kind": properties.String("test")},
	})
	require.NoError(t, err)

	stripped := ". " + fooLocator + " 0:3:foo.txt\n"
	assert.Equal(t, permission.KindCollection, permission.KindOf(c.UUID))
	assert.Equal(t, aliceUUID, c.OwnerUUID)
	assert.Equal(t, stripped, c.ManifestText())
	assert.Equal(t, collection.ComputePortableDataHash(stripped), c.PortableDataHash())
	assert.Equal(t, aliceUUID, c.ModifiedByUserUUID)
	assert.False(t, c.IsNew())

	got, signed, err := k.GetCollection(ctx, alice, aliceToken, c.UUID)
	require.NoError(t, err)
	assert.Equal(t, c.Record(), got.Record())
	assert.NotEqual(t, stripped, signed)
	assert.Equal(t, c.PortableDataHash(), hashWithoutSignatures(signed))
	assert.NotEqual(t, c.PortableDataHash(), collection.ComputePortableDataHash(signed))

	// The returned manifest can be saved again by the same caller.
	_, err = k.CreateCollection(ctx, alice, aliceToken, CollectionInput{ManifestText: signed})
	require.NoError(t, err)

	byHash, _, err := k.GetCollection(ctx, alice, aliceToken, c.PortableDataHash()+"+Kzzzzz")
	require.NoError(t, err)
	assert.Equal(t, c.PortableDataHash(), byHash.PortableDataHash())
}

func TestCreateRejectsUnsignedManifest(t *testing.T) { // A
	k := setupKeep(t)
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{
		ManifestText: ". " + fooLocator + " 0:3:foo.txt\n",
	})
	requireDenied(t, err, permission.ReasonMissingSignature)
}

func TestCreateRejectsForeignSignature(t *testing.T) { // A
	k := setupKeep(t)
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{
		ManifestText: signedManifest(t, k, bobToken),
	})
	requireDenied(t, err, permission.ReasonBadSignature)
}

func TestCreatePermitsUnsignedWhenConfigured(t *testing.T) { // A
	k := setupKeep(t, func(c *Config) { c.PermitUnsignedManifest = true })
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{
		ManifestText: ". " + fooLocator + " 0:3:foo.txt\n",
	})
	require.NoError(t, err)
}

func TestCreateRejectsHashMismatch(t *testing.T) { // A
	k := setupKeep(t)
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{
		ManifestText:     signedManifest(t, k, aliceToken),
		PortableDataHash: "d41d8cd98f00b204e9800998ecf8427e+0",
	})
	assert.ErrorIs(t, err, collection.ErrHashMismatch)
}

func TestCreateRejectsAnonymousAndInactive(t *testing.T) { // A
	k := setupKeep(t)
	_, err := k.CreateCollection(context.Background(), permission.Identity{}, "", CollectionInput{})
	requireDenied(t, err, permission.ReasonAnonymous)

	inactive := permission.Identity{UUID: bobUUID}
	_, err = k.CreateCollection(context.Background(), inactive, bobToken, CollectionInput{})
	requireDenied(t, err, permission.ReasonInactive)
}

func TestCreateRejectsForeignOwner(t *testing.T) { // A
	k := setupKeep(t)
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{
		OwnerUUID: bobUUID,
	})
	requireDenied(t, err, permission.ReasonNotPermitted)
}

func TestSharingWithPermissionLink(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{
		ManifestText: signedManifest(t, k, aliceToken),
	})
	require.NoError(t, err)

	_, _, err = k.GetCollection(ctx, bob, bobToken, c.UUID)
	requireDenied(t, err, permission.ReasonNotPermitted)
	_, _, err = k.GetCollection(ctx, bob, bobToken, c.PortableDataHash())
	requireDenied(t, err, permission.ReasonNotPermitted)
	_, err = k.SignBlock(ctx, bob, bobToken, c.UUID, fooLocator)
	requireDenied(t, err, permission.ReasonNotPermitted)

	// Bob cannot grant himself access.
	_, err = k.CreateLink(ctx, bob, permission.Link{
		LinkClass: permission.LinkClassPermission,
		Name:      "can_read",
		TailUUID:  bobUUID,
		HeadUUID:  c.UUID,
	})
	requireDenied(t, err, permission.ReasonNotPermitted)

	link, err := k.CreateLink(ctx, alice, permission.Link{
		LinkClass: permission.LinkClassPermission,
		Name:      "can_read",
		TailUUID:  bobUUID,
		HeadUUID:  c.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, permission.KindLink, permission.KindOf(link.UUID))
	assert.Equal(t, permission.SystemUserUUID("zzzzz"), link.OwnerUUID)

	_, signed, err := k.GetCollection(ctx, bob, bobToken, c.UUID)
	require.NoError(t, err)
	assert.Equal(t, c.PortableDataHash(), hashWithoutSignatures(signed))
	assert.NotEqual(t, c.PortableDataHash(), collection.ComputePortableDataHash(signed))

	sig, err := k.SignBlock(ctx, bob, bobToken, c.UUID, fooLocator)
	require.NoError(t, err)
	assert.True(t, k.Signer().Verify(sig, bobToken))
	assert.False(t, k.Signer().Verify(sig, aliceToken))

	links, err := k.LinksTo(ctx, bob, c.UUID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, link.UUID, links[0].UUID)

	// Read access does not allow writing.
	name := "renamed"
	_, err = k.UpdateCollection(ctx, bob, bobToken, c.UUID, CollectionPatch{Name: &name})
	requireDenied(t, err, permission.ReasonNotPermitted)

	require.NoError(t, k.DeleteLink(ctx, alice, link.UUID))
	_, _, err = k.GetCollection(ctx, bob, bobToken, c.UUID)
	requireDenied(t, err, permission.ReasonNotPermitted)
}

func TestCreateLinkRejectsForeignOwner(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)
	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "mine"})
	require.NoError(t, err)

	// A name link is owned by its tail, so bob cannot hang one off alice.
	_, err = k.CreateLink(ctx, bob, permission.Link{
		LinkClass: permission.LinkClassName,
		Name:      "planted",
		OwnerUUID: bobUUID,
		TailUUID:  aliceUUID,
		HeadUUID:  c.UUID,
	})
	requireDenied(t, err, permission.ReasonNotPermitted)

	_, err = k.CreateLink(ctx, bob, permission.Link{
		LinkClass: "tag",
		OwnerUUID: aliceUUID,
		TailUUID:  bobUUID,
		HeadUUID:  c.UUID,
	})
	requireDenied(t, err, permission.ReasonNotPermitted)

	links, err := k.LinksTo(ctx, alice, c.UUID)
	require.NoError(t, err)
	assert.Empty(t, links)

	named, err := k.CreateLink(ctx, alice, permission.Link{
		LinkClass: permission.LinkClassName,
		Name:      "favourite",
		TailUUID:  aliceUUID,
		HeadUUID:  c.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, aliceUUID, named.OwnerUUID)

	tag, err := k.CreateLink(ctx, bob, permission.Link{
		LinkClass: "tag",
		TailUUID:  bobUUID,
		HeadUUID:  c.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, bobUUID, tag.OwnerUUID)
}

func TestSignBlockUnknownBlock(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)
	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{
		ManifestText: signedManifest(t, k, aliceToken),
	})
	require.NoError(t, err)

	_, err = k.SignBlock(ctx, alice, aliceToken, c.UUID, "37b51d194a7513e45b56f6524f2d51f2+3")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = k.SignBlock(ctx, alice, aliceToken, c.UUID, "not a locator")
	assert.ErrorIs(t, err, locator.ErrInvalidLocator)
}

func TestUpdateCollection(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)
	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e+0", c.PortableDataHash())

	name := "second"
	text := signedManifest(t, k, aliceToken)
	updated, err := k.UpdateCollection(ctx, alice, aliceToken, c.UUID, CollectionPatch{
		Name:         &name,
		ManifestText: &text,
	})
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Name)
	assert.Equal(t, collection.ComputePortableDataHash(". "+fooLocator+" 0:3:foo.txt\n"), updated.PortableDataHash())
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)

	_, err = k.UpdateCollection(ctx, alice, aliceToken, "zzzzz-4zz18-000000000000000", CollectionPatch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeOwnerToGroup(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	group, err := k.CreateGroup(ctx, admin, "")
	require.NoError(t, err)
	assert.Equal(t, permission.KindGroup, permission.KindOf(group))

	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "moving"})
	require.NoError(t, err)

	err = k.ChangeOwner(ctx, alice, c.UUID, group)
	requireDenied(t, err, permission.ReasonNotPermitted)

	_, err = k.CreateLink(ctx, admin, permission.Link{
		LinkClass: permission.LinkClassPermission,
		Name:      "can_write",
		TailUUID:  aliceUUID,
		HeadUUID:  group,
	})
	require.NoError(t, err)

	require.NoError(t, k.ChangeOwner(ctx, alice, c.UUID, group))

	got, _, err := k.GetCollection(ctx, alice, aliceToken, c.UUID)
	require.NoError(t, err)
	assert.Equal(t, group, got.OwnerUUID)

	// Bob reads the collection once he can read the group.
	_, _, err = k.GetCollection(ctx, bob, bobToken, c.UUID)
	requireDenied(t, err, permission.ReasonNotPermitted)
	_, err = k.CreateLink(ctx, admin, permission.Link{
		LinkClass: permission.LinkClassPermission,
		Name:      "can_read",
		TailUUID:  bobUUID,
		HeadUUID:  group,
	})
	require.NoError(t, err)
	_, _, err = k.GetCollection(ctx, bob, bobToken, c.UUID)
	require.NoError(t, err)
}

func TestChangeOwnerRejectsCycle(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	outer, err := k.CreateGroup(ctx, admin, "")
	require.NoError(t, err)
	inner, err := k.CreateGroup(ctx, admin, outer)
	require.NoError(t, err)

	// inner is owned by outer, so the chain walks back into outer.
	err = k.ChangeOwner(ctx, admin, outer, inner)
	assert.ErrorIs(t, err, permission.ErrOwnershipCycle)

	err = k.ChangeOwner(ctx, admin, outer, outer)
	assert.ErrorIs(t, err, permission.ErrWouldCreateCycle)
}

func TestRegisterUser(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	err := k.RegisterUser(ctx, alice, bobUUID)
	requireDenied(t, err, permission.ReasonNotPermitted)

	require.NoError(t, k.RegisterUser(ctx, admin, bobUUID))
	assert.Error(t, k.RegisterUser(ctx, admin, "zzzzz-j7d0g-000000000000000"))
}

func TestDeleteCollection(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)
	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "doomed"})
	require.NoError(t, err)

	requireDenied(t, k.DeleteCollection(ctx, bob, c.UUID), permission.ReasonNotPermitted)
	require.NoError(t, k.DeleteCollection(ctx, alice, c.UUID))

	_, _, err = k.GetCollection(ctx, alice, aliceToken, c.UUID)
	assert.ErrorIs(t, err, ErrNotFound)

	hits, err := k.SearchCollections(ctx, alice, "doomed", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchCollectionsFiltersUnreadable(t *testing.T) { // A
	ctx := context.Background()
	k := setupKeep(t)

	mine, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "sequencing results"})
	require.NoError(t, err)
	_, err = k.CreateCollection(ctx, bob, bobToken, CollectionInput{Name: "sequencing raw"})
	require.NoError(t, err)

	hits, err := k.SearchCollections(ctx, alice, "sequ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mine.UUID, hits[0].UUID)

	hits, err = k.SearchCollections(ctx, admin, "sequ", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	all, err := k.ListReadableCollections(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSearchDisabled(t *testing.T) { // A
	k := setupKeep(t, func(c *Config) { c.DisableIndex = true })
	_, err := k.CreateCollection(context.Background(), alice, aliceToken, CollectionInput{Name: "x"})
	require.NoError(t, err)

	_, err = k.SearchCollections(context.Background(), alice, "x", 1)
	assert.ErrorIs(t, err, ErrIndexDisabled)
}

func TestIndexRebuiltOnOpen(t *testing.T) { // A
	ctx := context.Background()
	dir := t.TempDir()
	onDisk := func(c *Config) {
		c.InMemory = false
		c.Paths = []string{dir}
	}

	k := setupKeep(t, onDisk)
	c, err := k.CreateCollection(ctx, alice, aliceToken, CollectionInput{Name: "persistent"})
	require.NoError(t, err)
	require.NoError(t, k.Close())

	k = setupKeep(t, onDisk)
	hits, err := k.SearchCollections(ctx, alice, "persist", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c.UUID, hits[0].UUID)
}
