package txbuilder

import (
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler/ledger"
	"golang.org/x/crypto/ed25519"
)

// TransactionBuilder assembles transaction together with the outputs it consumes
type TransactionBuilder struct {
	ConsumedOutputs []*ledger.Output
	Transaction     *ledger.Transaction
}

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		ConsumedOutputs: make([]*ledger.Output, 0),
		Transaction:     ledger.NewTransaction(),
	}
}

func (ctx *TransactionBuilder) NumInputs() int {
	ret := len(ctx.ConsumedOutputs)
	easyfl.Assert(ret == len(ctx.Transaction.Inputs), "ret==len(ctx.Transaction.Inputs)")
	return ret
}

func (ctx *TransactionBuilder) NumOutputs() int {
	return len(ctx.Transaction.Outputs)
}

func (ctx *TransactionBuilder) ConsumeOutput(out *ledger.Output, oid ledger.OutputID) (uint16, error) {
	if ctx.NumInputs() >= ledger.MaxNumElements {
		return 0, fmt.Errorf("too many consumed outputs")
	}
	ctx.ConsumedOutputs = append(ctx.ConsumedOutputs, out)
	ctx.Transaction.Inputs = append(ctx.Transaction.Inputs, ledger.NewInput(oid))
	return uint16(len(ctx.ConsumedOutputs) - 1), nil
}

func (ctx *TransactionBuilder) ProduceOutput(out *ledger.Output) (uint16, error) {
	if ctx.NumOutputs() >= ledger.MaxNumElements {
		return 0, fmt.Errorf("too many produced outputs")
	}
	ctx.Transaction.Outputs = append(ctx.Transaction.Outputs, out)
	return uint16(len(ctx.Transaction.Outputs) - 1), nil
}

// SignInput signs the input. Outputs must not change afterwards
func (ctx *TransactionBuilder) SignInput(idx int, privKey ed25519.PrivateKey) {
	ctx.Transaction.Inputs[idx].Signature = ed25519.Sign(privKey, ctx.Transaction.SignableDigest(idx))
}

// SignAll signs all inputs with the same key
func (ctx *TransactionBuilder) SignAll(privKey ed25519.PrivateKey) {
	for i := range ctx.Transaction.Inputs {
		ctx.SignInput(i, privKey)
	}
}

func (ctx *TransactionBuilder) ConsumedAmount() (ret int64) {
	for _, o := range ctx.ConsumedOutputs {
		ret += o.Amount
	}
	return
}

func (ctx *TransactionBuilder) ProducedAmount() (ret int64) {
	for _, o := range ctx.Transaction.Outputs {
		ret += o.Amount
	}
	return
}

type ED25519TransferInputs struct {
	SenderPrivateKey ed25519.PrivateKey
	SenderPublicKey  ed25519.PublicKey
	SenderAddress    ledger.Address
	Outputs          []*ledger.OutputWithID
	Target           ledger.Address
	Amount           int64
}

func NewED25519TransferInputs(senderKey ed25519.PrivateKey) *ED25519TransferInputs {
	sourcePubKey := senderKey.Public().(ed25519.PublicKey)
	return &ED25519TransferInputs{
		SenderPrivateKey: senderKey,
		SenderPublicKey:  sourcePubKey,
		SenderAddress:    ledger.AddressFromPublicKey(sourcePubKey),
	}
}

func (t *ED25519TransferInputs) WithTargetAddress(addr ledger.Address) *ED25519TransferInputs {
	t.Target = addr
	return t
}

func (t *ED25519TransferInputs) WithAmount(amount int64) *ED25519TransferInputs {
	t.Amount = amount
	return t
}

// WithOutputs sets outputs available for consumption. They are consumed in the given order
func (t *ED25519TransferInputs) WithOutputs(outs []*ledger.OutputWithID) *ED25519TransferInputs {
	t.Outputs = outs
	return t
}

// MakeTransferTransaction consumes as many outputs as needed to cover the amount, sends the amount
// to the target and the reminder back to the sender. All inputs are signed by the sender
func MakeTransferTransaction(par *ED25519TransferInputs) (*ledger.Transaction, error) {
	if par.Amount < 0 {
		return nil, fmt.Errorf("negative amount %d", par.Amount)
	}
	if len(par.Target) == 0 {
		return nil, fmt.Errorf("target address not specified")
	}
	ctx := NewTransactionBuilder()
	var availableTokens int64
	for _, o := range par.Outputs {
		if availableTokens >= par.Amount && ctx.NumInputs() > 0 {
			break
		}
		if _, err := ctx.ConsumeOutput(o.Output, o.ID); err != nil {
			return nil, err
		}
		availableTokens += o.Output.Amount
	}
	if availableTokens < par.Amount {
		return nil, fmt.Errorf("not enough tokens in address %s: needed %d, got %d",
			par.SenderAddress.String(), par.Amount, availableTokens)
	}
	if _, err := ctx.ProduceOutput(ledger.NewOutput(par.Target, par.Amount)); err != nil {
		return nil, err
	}
	if availableTokens > par.Amount {
		if _, err := ctx.ProduceOutput(ledger.NewOutput(par.SenderAddress, availableTokens-par.Amount)); err != nil {
			return nil, err
		}
	}
	ctx.SignAll(par.SenderPrivateKey)
	return ctx.Transaction, nil
}
