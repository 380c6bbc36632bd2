package ledger

import (
	"fmt"
	"math"

	"github.com/lunfardo314/txhandler"
	"github.com/lunfardo314/txhandler/lazyslice"
)

// Output is a recipient address and an amount. Serialized form is a lazyslice array:
// - at index 0 the address
// - at index 1 the amount, 8 bytes big-endian int64
// The amount is signed: an output with negative amount can be expressed but never is valid

const (
	OutputBlockAddress = iota
	OutputBlockAmount
	OutputNumBlocks
)

type (
	Output struct {
		Address Address
		Amount  int64
	}

	OutputWithID struct {
		ID     OutputID
		Output *Output
	}
)

func NewOutput(addr Address, amount int64) *Output {
	return &Output{
		Address: addr,
		Amount:  amount,
	}
}

func OutputFromBytes(data []byte) (*Output, error) {
	arr, err := lazyslice.ParseArray(data, OutputNumBlocks)
	if err != nil {
		return nil, fmt.Errorf("OutputFromBytes: %v", err)
	}
	if arr.NumElements() != OutputNumBlocks {
		return nil, fmt.Errorf("OutputFromBytes: expected %d blocks, got %d", OutputNumBlocks, arr.NumElements())
	}
	amount, err := txhandler.DecodeIntegerStrict[int64](arr.At(OutputBlockAmount))
	if err != nil {
		return nil, fmt.Errorf("OutputFromBytes: wrong amount: %v", err)
	}
	return &Output{
		Address: Address(arr.At(OutputBlockAddress)),
		Amount:  amount,
	}, nil
}

func (o *Output) Bytes() []byte {
	return lazyslice.MakeArray(o.Address, txhandler.EncodeInteger(o.Amount)).Bytes()
}

func (o *Output) String() string {
	return fmt.Sprintf("%d -> %s", o.Amount, o.Address.String())
}

// AddAmount returns sum + a. False if the result does not fit int64
func AddAmount(sum, a int64) (int64, bool) {
	if (a > 0 && sum > math.MaxInt64-a) || (a < 0 && sum < math.MinInt64-a) {
		return sum, false
	}
	return sum + a, true
}

// AddAmountSaturated is AddAmount clamped to the int64 bounds
func AddAmountSaturated(sum, a int64) int64 {
	ret, ok := AddAmount(sum, a)
	switch {
	case ok:
		return ret
	case a > 0:
		return math.MaxInt64
	}
	return math.MinInt64
}
