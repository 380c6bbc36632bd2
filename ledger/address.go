package ledger

import (
	"bytes"

	"github.com/lunfardo314/easyfl"
	"golang.org/x/crypto/ed25519"
)

// Address is the recipient identity of an output: the ed25519 public key which must sign its spending
type Address []byte

func AddressFromPublicKey(pubKey ed25519.PublicKey) Address {
	return Address(bytes.Clone(pubKey))
}

func (a Address) Bytes() []byte {
	return a
}

func (a Address) Equal(a1 Address) bool {
	return bytes.Equal(a, a1)
}

func (a Address) String() string {
	return easyfl.Fmt(a)
}
