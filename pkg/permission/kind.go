package permission

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

// Kind names the resource class an identifier belongs to.
type Kind string // A

const (
	KindUnknown    Kind = ""
	KindUser       Kind = "arvados#user"
	KindGroup      Kind = "arvados#group"
	KindLink       Kind = "arvados#link"
	KindCollection Kind = "arvados#collection"
	KindEmail      Kind = "email"
)

var infixKinds = map[string]Kind{
	"tpzed": KindUser,
	"j7d0g": KindGroup,
	"o0j2j": KindLink,
	"4zz18": KindCollection,
}

var (
	uuidPattern  = regexp.MustCompile(`^[0-9a-z]{5}-([0-9a-z]{5})-[0-9a-z]{15}$`)
	pdhPattern   = regexp.MustCompile(`^[0-9a-f]{32}(\+[^,]+)*(,[0-9a-f]{32}(\+[^,]+)*)*$`)
	emailPattern = regexp.MustCompile(`.+@.+`)
)

// KindOf classifies an identifier. Content addresses are collections,
// "site-infix-id" identifiers are looked up by infix and anything with
// an "@" is an email address.
func KindOf(uuid string) Kind { // A
	if pdhPattern.MatchString(uuid) {
		return KindCollection
	}
	if m := uuidPattern.FindStringSubmatch(uuid); m != nil {
		if k, ok := infixKinds[m[1]]; ok {
			return k
		}
	}
	if emailPattern.MatchString(uuid) {
		return KindEmail
	}
	return KindUnknown
}

// Infix returns the five character type infix used in identifiers of k.
func (k Kind) Infix() (string, bool) { // A
	for infix, kind := range infixKinds {
		if kind == k {
			return infix, true
		}
	}
	return "", false
}

const uuidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewUUID generates a random identifier of kind k for the given five
// character site prefix.
func NewUUID(site string, k Kind) (string, error) { // A
	infix, ok := k.Infix()
	if !ok {
		return "", fmt.Errorf("kind %q has no identifier infix", k)
	}
	if len(site) != 5 {
		return "", fmt.Errorf("site prefix %q must be 5 characters", site)
	}
	id := make([]byte, 15)
	base := big.NewInt(int64(len(uuidAlphabet)))
	for i := range id {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate uuid: %w", err)
		}
		id[i] = uuidAlphabet[n.Int64()]
	}
	return site + "-" + infix + "-" + string(id), nil
}

// SystemUserUUID is the owner of every permission link on a site.
func SystemUserUUID(site string) string { // A
	return site + "-tpzed-000000000000000"
}
