package utxodb

import (
	"encoding/hex"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler"
	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/handler"
	"github.com/lunfardo314/txhandler/ledger/indexer"
	"github.com/lunfardo314/txhandler/ledger/txbuilder"
	"github.com/lunfardo314/txhandler/ledger/utxopool"
	"github.com/lunfardo314/unitrie/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ed25519"
)

// UTXODB is an in-memory ledger with a faucet, for testing and tooling.
// Outputs of committed transactions are inserted into the pool, so tokens can be spent again

type UTXODB struct {
	handler           *handler.TxHandler
	indexer           *indexer.Indexer
	supply            int64
	genesisPrivateKey ed25519.PrivateKey
	genesisPublicKey  ed25519.PublicKey
	genesisAddress    ledger.Address
}

const (
	// for determinism
	originPrivateKey        = "8ec47313c15c3a4443c41619735109b56bc818f4a6b71d6a1f186ec96d15f28f14117899305d99fb4775de9223ce9886cfaa3195da1e40c5db47c61266f04dd2"
	deterministicSeed       = "1234567890987654321"
	supplyForTesting        = int64(1_000_000_000_000)
	TokensFromFaucetDefault = int64(1_000_000)
)

// GenesisOutputID is all-0
var GenesisOutputID ledger.OutputID

func NewUTXODB(log ...*zap.SugaredLogger) *UTXODB {
	originPrivateKeyBin, err := hex.DecodeString(originPrivateKey)
	easyfl.AssertNoError(err)
	originPubKey := ed25519.PrivateKey(originPrivateKeyBin).Public().(ed25519.PublicKey)
	originAddr := ledger.AddressFromPublicKey(originPubKey)

	genesis := utxopool.NewInMemory()
	genesis.Add(GenesisOutputID, ledger.NewOutput(originAddr, supplyForTesting))

	inr := indexer.NewInMemory()
	easyfl.AssertNoError(inr.IndexPool(genesis))

	opts := []handler.Option{handler.WithOutputInsertion(), handler.WithIndexer(inr)}
	if len(log) > 0 {
		opts = append(opts, handler.WithLogger(log[0]))
	}
	return &UTXODB{
		handler:           handler.NewTxHandler(genesis, opts...),
		indexer:           inr,
		supply:            supplyForTesting,
		genesisPrivateKey: ed25519.PrivateKey(originPrivateKeyBin),
		genesisPublicKey:  originPubKey,
		genesisAddress:    originAddr,
	}
}

func (u *UTXODB) Supply() int64 {
	return u.supply
}

func (u *UTXODB) Pool() *utxopool.Pool {
	return u.handler.UTXOPool()
}

func (u *UTXODB) Handler() *handler.TxHandler {
	return u.handler
}

func (u *UTXODB) GenesisKeys() (ed25519.PrivateKey, ed25519.PublicKey) {
	return u.genesisPrivateKey, u.genesisPublicKey
}

func (u *UTXODB) GenesisAddress() ledger.Address {
	return u.genesisAddress
}

// AddTransaction commits the transaction as a round of one
func (u *UTXODB) AddTransaction(tx *ledger.Transaction) error {
	if err := handler.Validate(tx, u.Pool(), nil); err != nil {
		return err
	}
	if accepted := u.handler.HandleTxs([]*ledger.Transaction{tx}); len(accepted) != 1 {
		return fmt.Errorf("transaction was not accepted")
	}
	return nil
}

func (u *UTXODB) TokensFromFaucet(addr ledger.Address, howMany ...int64) error {
	amount := TokensFromFaucetDefault
	if len(howMany) > 0 && howMany[0] > 0 {
		amount = howMany[0]
	}
	tx, err := u.MakeTransfer(u.genesisPrivateKey, addr, amount)
	if err != nil {
		return fmt.Errorf("UTXODB faucet: %v", err)
	}
	return u.AddTransaction(tx)
}

// GenerateAddress returns deterministic key pair and address for the index
func (u *UTXODB) GenerateAddress(n uint16) (ed25519.PrivateKey, ed25519.PublicKey, ledger.Address) {
	return GenerateAddress(n)
}

func GenerateAddress(n uint16) (ed25519.PrivateKey, ed25519.PublicKey, ledger.Address) {
	seed := blake2b.Sum256(common.Concat([]byte(deterministicSeed), txhandler.EncodeInteger(n)))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, ledger.AddressFromPublicKey(pub)
}

func (u *UTXODB) MakeED25519TransferInputs(privKey ed25519.PrivateKey) (*txbuilder.ED25519TransferInputs, error) {
	ret := txbuilder.NewED25519TransferInputs(privKey)
	outs, err := u.indexer.GetUTXOsForAddress(ret.SenderAddress, u.Pool())
	if err != nil {
		return nil, err
	}
	return ret.WithOutputs(outs), nil
}

// MakeTransfer builds signed transfer from outputs of the key's address without committing it
func (u *UTXODB) MakeTransfer(privKey ed25519.PrivateKey, target ledger.Address, amount int64) (*ledger.Transaction, error) {
	par, err := u.MakeED25519TransferInputs(privKey)
	if err != nil {
		return nil, err
	}
	return txbuilder.MakeTransferTransaction(par.WithTargetAddress(target).WithAmount(amount))
}

func (u *UTXODB) TransferTokens(privKey ed25519.PrivateKey, target ledger.Address, amount int64) error {
	tx, err := u.MakeTransfer(privKey, target, amount)
	if err != nil {
		return err
	}
	return u.AddTransaction(tx)
}

func (u *UTXODB) account(addr ledger.Address) (int64, int) {
	outs, err := u.indexer.GetUTXOsForAddress(addr, u.Pool())
	easyfl.AssertNoError(err)
	balance := int64(0)
	for _, o := range outs {
		balance = ledger.AddAmountSaturated(balance, o.Output.Amount)
	}
	return balance, len(outs)
}

func (u *UTXODB) Balance(addr ledger.Address) int64 {
	ret, _ := u.account(addr)
	return ret
}

func (u *UTXODB) NumUTXOs(addr ledger.Address) int {
	_, ret := u.account(addr)
	return ret
}
