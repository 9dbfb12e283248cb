package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Identity is a signing identity derived from a secret phrase.
type Identity struct {
	Address    types.Address
	PrivateKey ed25519.PrivateKey
	// Empty is set when the phrase was missing and the zero-seed key was
	// used instead.
	Empty bool
}

func (id Identity) String() string {
	return id.Address.String()
}

// Resolve derives the identity for a 25-word mnemonic. An empty phrase
// resolves to the keypair of the all-zero seed so that dry runs without
// configured keys still start; anything signed with it is rejected by the
// network.
func Resolve(phrase string) (Identity, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if phrase == "" {
		return fromKey(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)), true)
	}

	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return fromKey(sk, false)
}

// ResolvePair resolves the creator and owner identities independently.
func ResolvePair(creatorPhrase, ownerPhrase string) (creator, owner Identity, err error) {
	creator, err = Resolve(creatorPhrase)
	if err != nil {
		return Identity{}, Identity{}, fmt.Errorf("creator: %w", err)
	}
	owner, err = Resolve(ownerPhrase)
	if err != nil {
		return Identity{}, Identity{}, fmt.Errorf("owner: %w", err)
	}
	return creator, owner, nil
}

func fromKey(sk ed25519.PrivateKey, empty bool) (Identity, error) {
	acct, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return Identity{
		Address:    acct.Address,
		PrivateKey: acct.PrivateKey,
		Empty:      empty,
	}, nil
}
