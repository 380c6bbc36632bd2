package ledger

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler"
)

const (
	TransactionIDLength = 32
	OutputIDLength      = TransactionIDLength + 2
)

type (
	// TransactionID is the content hash of the transaction
	TransactionID [TransactionIDLength]byte

	// OutputID is the UTXO key: ID of the producing transaction and index of the output in it
	OutputID [OutputIDLength]byte
)

func TransactionIDFromBytes(data []byte) (ret TransactionID, err error) {
	if len(data) != TransactionIDLength {
		err = errors.New("TransactionIDFromBytes: wrong data length")
		return
	}
	copy(ret[:], data)
	return
}

func (txid *TransactionID) Bytes() []byte {
	return txid[:]
}

func (txid *TransactionID) String() string {
	return easyfl.Fmt(txid[:])
}

func (txid *TransactionID) Short() string {
	return easyfl.Fmt(txid[:4]) + ".."
}

func NewOutputID(id TransactionID, idx uint16) (ret OutputID) {
	copy(ret[:TransactionIDLength], id[:])
	copy(ret[TransactionIDLength:], txhandler.EncodeInteger(idx))
	return
}

func OutputIDFromBytes(data []byte) (ret OutputID, err error) {
	if len(data) != OutputIDLength {
		err = errors.New("OutputIDFromBytes: wrong data length")
		return
	}
	copy(ret[:], data)
	return
}

func (oid *OutputID) String() string {
	txid := oid.TransactionID()
	return fmt.Sprintf("[%d]%s", oid.Index(), txid.String())
}

func (oid *OutputID) Short() string {
	txid := oid.TransactionID()
	return fmt.Sprintf("[%d]%s", oid.Index(), txid.Short())
}

func (oid *OutputID) TransactionID() (ret TransactionID) {
	copy(ret[:], oid[:TransactionIDLength])
	return
}

func (oid *OutputID) Index() uint16 {
	return txhandler.DecodeInteger[uint16](oid[TransactionIDLength:])
}

func (oid *OutputID) Bytes() []byte {
	return oid[:]
}

// LessOutputID is the deterministic order of output IDs
func LessOutputID(oid1, oid2 *OutputID) bool {
	return bytes.Compare(oid1[:], oid2[:]) < 0
}
