package ledger

import (
	"fmt"
	"strings"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler/lazyslice"
	"golang.org/x/crypto/blake2b"
)

// Transaction serialized form is a lazyslice array:
// - at index 0 array of inputs, each input is array [output ID, signature]
// - at index 1 array of outputs
// The ID of the transaction is blake2b-256 hash of its serialized form, signatures included

const (
	TxInputs = iota
	TxOutputs
	TxNumBlocks
)

const (
	InputBlockOutputID = iota
	InputBlockSignature
	InputNumBlocks
)

// MaxNumElements is the maximum number of inputs or outputs
const MaxNumElements = lazyslice.MaxArrayLen

type (
	Input struct {
		OutputID  OutputID
		Signature []byte
	}

	Transaction struct {
		Inputs  []*Input
		Outputs []*Output
	}
)

func NewInput(oid OutputID, sig ...[]byte) *Input {
	ret := &Input{OutputID: oid}
	if len(sig) > 0 {
		ret.Signature = sig[0]
	}
	return ret
}

func (in *Input) Bytes() []byte {
	return lazyslice.MakeArray(in.OutputID[:], in.Signature).Bytes()
}

func inputFromBytes(data []byte) (*Input, error) {
	arr, err := lazyslice.ParseArray(data, InputNumBlocks)
	if err != nil {
		return nil, err
	}
	if arr.NumElements() != InputNumBlocks {
		return nil, fmt.Errorf("expected %d blocks in the input, got %d", InputNumBlocks, arr.NumElements())
	}
	oid, err := OutputIDFromBytes(arr.At(InputBlockOutputID))
	if err != nil {
		return nil, err
	}
	return &Input{
		OutputID:  oid,
		Signature: arr.At(InputBlockSignature),
	}, nil
}

func NewTransaction() *Transaction {
	return &Transaction{
		Inputs:  make([]*Input, 0),
		Outputs: make([]*Output, 0),
	}
}

func TransactionFromBytes(data []byte) (*Transaction, error) {
	var ret *Transaction
	err := easyfl.CatchPanicOrError(func() error {
		var err1 error
		ret, err1 = transactionFromBytes(data)
		return err1
	})
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: %v", err)
	}
	return ret, nil
}

func transactionFromBytes(data []byte) (*Transaction, error) {
	arr, err := lazyslice.ParseArray(data, TxNumBlocks)
	if err != nil {
		return nil, err
	}
	if arr.NumElements() != TxNumBlocks {
		return nil, fmt.Errorf("expected %d blocks in the transaction, got %d", TxNumBlocks, arr.NumElements())
	}
	inputs, err := lazyslice.ParseArray(arr.At(TxInputs))
	if err != nil {
		return nil, fmt.Errorf("inputs: %v", err)
	}
	outputs, err := lazyslice.ParseArray(arr.At(TxOutputs))
	if err != nil {
		return nil, fmt.Errorf("outputs: %v", err)
	}
	ret := &Transaction{
		Inputs:  make([]*Input, inputs.NumElements()),
		Outputs: make([]*Output, outputs.NumElements()),
	}
	inputs.ForEach(func(i int, d []byte) bool {
		if ret.Inputs[i], err = inputFromBytes(d); err != nil {
			err = fmt.Errorf("input #%d: %v", i, err)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	outputs.ForEach(func(i int, d []byte) bool {
		if ret.Outputs[i], err = OutputFromBytes(d); err != nil {
			err = fmt.Errorf("output #%d: %v", i, err)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (tx *Transaction) NumInputs() int {
	return len(tx.Inputs)
}

func (tx *Transaction) NumOutputs() int {
	return len(tx.Outputs)
}

func (tx *Transaction) outputsBytes() []byte {
	arr := lazyslice.EmptyArray()
	for _, o := range tx.Outputs {
		arr.Push(o.Bytes())
	}
	return arr.Bytes()
}

func (tx *Transaction) Bytes() []byte {
	inputs := lazyslice.EmptyArray()
	for _, in := range tx.Inputs {
		inputs.Push(in.Bytes())
	}
	return lazyslice.MakeArray(inputs.Bytes(), tx.outputsBytes()).Bytes()
}

// ID is the content hash. It changes if the transaction is modified, so it is stable only
// after all inputs are signed
func (tx *Transaction) ID() TransactionID {
	return blake2b.Sum256(tx.Bytes())
}

// SignableDigest is the data the signature of the input #idx commits to:
// the output ID the input consumes and all outputs of the transaction.
// Signatures are not part of it
func (tx *Transaction) SignableDigest(idx int) []byte {
	easyfl.Assert(0 <= idx && idx < len(tx.Inputs), "SignableDigest: wrong input index %d", idx)
	return lazyslice.MakeArray(tx.Inputs[idx].OutputID[:], tx.outputsBytes()).Bytes()
}

// ProducedOutputID is the UTXO key of the output #idx after the transaction is committed
func (tx *Transaction) ProducedOutputID(idx uint16) OutputID {
	return NewOutputID(tx.ID(), idx)
}

// ForEachProducedOutput iterates outputs together with their future UTXO keys
func (tx *Transaction) ForEachProducedOutput(fun func(idx uint16, o *Output, oid *OutputID) bool) {
	txid := tx.ID()
	for i, o := range tx.Outputs {
		oid := NewOutputID(txid, uint16(i))
		if !fun(uint16(i), o, &oid) {
			return
		}
	}
}

func (tx *Transaction) String() string {
	txid := tx.ID()
	var buf strings.Builder
	fmt.Fprintf(&buf, "tx %s\n", txid.String())
	for i, in := range tx.Inputs {
		fmt.Fprintf(&buf, "   in #%d: %s\n", i, in.OutputID.String())
	}
	for i, o := range tx.Outputs {
		fmt.Fprintf(&buf, "   out #%d: %s\n", i, o.String())
	}
	return buf.String()
}
