package handler_test

import (
	"testing"

	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/handler"
	"github.com/lunfardo314/txhandler/ledger/indexer"
	"github.com/lunfardo314/txhandler/ledger/txbuilder"
	"github.com/lunfardo314/txhandler/ledger/utxodb"
	"github.com/lunfardo314/txhandler/ledger/utxopool"
	"github.com/lunfardo314/txhandler/util/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ed25519"
)

var (
	privA, _, addrA = utxodb.GenerateAddress(0)
	privB, _, addrB = utxodb.GenerateAddress(1)
	_, _, addrC     = utxodb.GenerateAddress(2)
)

func utxo(s string, idx uint16) ledger.OutputID {
	return ledger.NewOutputID(blake2b.Sum256([]byte(s)), idx)
}

// spend builds transaction consuming the outputs, all signed by the key
func spend(priv ed25519.PrivateKey, consumed []ledger.OutputID, outs ...*ledger.Output) *ledger.Transaction {
	tx := ledger.NewTransaction()
	for _, oid := range consumed {
		tx.Inputs = append(tx.Inputs, ledger.NewInput(oid))
	}
	tx.Outputs = append(tx.Outputs, outs...)
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = ed25519.Sign(priv, tx.SignableDigest(i))
	}
	return tx
}

func ids(oids ...ledger.OutputID) []ledger.OutputID {
	return oids
}

func poolWith(outs ...*ledger.OutputWithID) *utxopool.Pool {
	return utxopool.FromOutputs(outs...)
}

func entry(oid ledger.OutputID, addr ledger.Address, amount int64) *ledger.OutputWithID {
	return &ledger.OutputWithID{ID: oid, Output: ledger.NewOutput(addr, amount)}
}

func TestIsValid(t *testing.T) {
	u1 := utxo("U", 1)
	u2 := utxo("U", 2)
	pool := poolWith(entry(u1, addrA, 10), entry(u2, addrA, 5))

	t.Run("simple spend", func(t *testing.T) {
		tx := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		require.NoError(t, handler.Validate(tx, pool, ledger.VerifyED25519))
		require.True(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
		// nil verifier defaults to ed25519
		require.True(t, handler.IsValid(tx, pool, nil))
	})
	t.Run("missing input", func(t *testing.T) {
		tx := spend(privA, ids(u1, utxo("U", 3)), ledger.NewOutput(addrB, 1))
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("double claim in one tx", func(t *testing.T) {
		tx := spend(privA, ids(u1, u1), ledger.NewOutput(addrB, 1))
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
		// regardless of signature validity
		alwaysTrue := func(_, _, _ []byte) bool { return true }
		require.False(t, handler.IsValid(tx, pool, alwaysTrue))
	})
	t.Run("negative output", func(t *testing.T) {
		tx := spend(privA, ids(u1), ledger.NewOutput(addrB, 11), ledger.NewOutput(addrA, -1))
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("conservation", func(t *testing.T) {
		tx := spend(privA, ids(u2), ledger.NewOutput(addrB, 6))
		err := handler.Validate(tx, pool, ledger.VerifyED25519)
		require.Error(t, err)
		t.Logf("expected error: %v", err)

		tx = spend(privA, ids(u2), ledger.NewOutput(addrB, 5))
		require.True(t, handler.IsValid(tx, pool, ledger.VerifyED25519))

		tx = spend(privA, ids(u2), ledger.NewOutput(addrB, 4))
		require.True(t, handler.IsValid(tx, pool, ledger.VerifyED25519))

		tx = spend(privA, ids(u1, u2), ledger.NewOutput(addrB, 15))
		require.True(t, handler.IsValid(tx, pool, ledger.VerifyED25519))

		tx = spend(privA, ids(u1, u2), ledger.NewOutput(addrB, 8), ledger.NewOutput(addrC, 8))
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("wrong signer", func(t *testing.T) {
		tx := spend(privB, ids(u1), ledger.NewOutput(addrB, 10))
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("signature over other data", func(t *testing.T) {
		tx := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		// changing outputs after signing invalidates the signature
		tx.Outputs[0].Address = addrC
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("signature of other input", func(t *testing.T) {
		tx := spend(privA, ids(u1, u2), ledger.NewOutput(addrB, 15))
		tx.Inputs[0].Signature, tx.Inputs[1].Signature = tx.Inputs[1].Signature, tx.Inputs[0].Signature
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("no inputs no outputs", func(t *testing.T) {
		require.True(t, handler.IsValid(ledger.NewTransaction(), pool, ledger.VerifyED25519))
	})
	t.Run("malformed", func(t *testing.T) {
		require.False(t, handler.IsValid(nil, pool, ledger.VerifyED25519))

		tx := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		tx.Inputs = append(tx.Inputs, nil)
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))

		tx = spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		tx.Outputs = append(tx.Outputs, nil)
		require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
	})
	t.Run("overflow", func(t *testing.T) {
		const max = int64(^uint64(0) >> 1)
		p := poolWith(entry(u1, addrA, max), entry(u2, addrA, 5))
		tx := spend(privA, ids(u1, u2), ledger.NewOutput(addrB, 1))
		require.False(t, handler.IsValid(tx, p, ledger.VerifyED25519))

		tx = spend(privA, ids(u2), ledger.NewOutput(addrB, max), ledger.NewOutput(addrB, max))
		require.False(t, handler.IsValid(tx, p, ledger.VerifyED25519))
	})
	t.Run("too many outputs", func(t *testing.T) {
		tx := ledger.NewTransaction()
		tx.Inputs = append(tx.Inputs, ledger.NewInput(u1, make([]byte, ed25519.SignatureSize)))
		for i := 0; i <= ledger.MaxNumElements; i++ {
			tx.Outputs = append(tx.Outputs, ledger.NewOutput(addrB, 0))
		}
		require.NotPanics(t, func() {
			require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
		})
		h := handler.NewTxHandler(pool)
		require.NotPanics(t, func() {
			require.EqualValues(t, 0, len(h.HandleTxs([]*ledger.Transaction{tx})))
		})
		require.True(t, h.UTXOPool().Contains(u1))
	})
	t.Run("too many inputs", func(t *testing.T) {
		tx := ledger.NewTransaction()
		for i := 0; i <= ledger.MaxNumElements; i++ {
			tx.Inputs = append(tx.Inputs, ledger.NewInput(utxo("many", uint16(i))))
		}
		tx.Outputs = append(tx.Outputs, ledger.NewOutput(addrB, 1))
		require.NotPanics(t, func() {
			require.False(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
		})
	})
	t.Run("pure", func(t *testing.T) {
		tx := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		bad := spend(privB, ids(u1), ledger.NewOutput(addrB, 10))
		before := pool.OutputIDs()
		for i := 0; i < 3; i++ {
			require.True(t, handler.IsValid(tx, pool, ledger.VerifyED25519))
			require.False(t, handler.IsValid(bad, pool, ledger.VerifyED25519))
		}
		require.EqualValues(t, before, pool.OutputIDs())
	})
}

func TestHandleTxs(t *testing.T) {
	u1 := utxo("U", 1)
	u2 := utxo("U", 2)
	u3 := utxo("U", 3)

	t.Run("single", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool, handler.WithLogger(testutil.NewSimpleLogger(true)))
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		require.True(t, h.IsValidTx(t1))

		accepted := h.HandleTxs([]*ledger.Transaction{t1})
		require.EqualValues(t, []*ledger.Transaction{t1}, accepted)
		require.False(t, h.UTXOPool().Contains(u1))
		require.False(t, h.IsValidTx(t1))
		// caller's pool is not affected
		require.True(t, pool.Contains(u1))
	})
	t.Run("double spend across candidates", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool)
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		t2 := spend(privA, ids(u1), ledger.NewOutput(addrC, 10))
		require.True(t, h.IsValidTx(t1))
		require.True(t, h.IsValidTx(t2))

		accepted := h.HandleTxs([]*ledger.Transaction{t1, t2})
		require.EqualValues(t, 1, len(accepted))
		// first in order wins
		require.True(t, accepted[0] == t1)
		require.EqualValues(t, 0, h.UTXOPool().Len())

		h = handler.NewTxHandler(pool)
		accepted = h.HandleTxs([]*ledger.Transaction{t2, t1})
		require.EqualValues(t, 1, len(accepted))
		require.True(t, accepted[0] == t2)
	})
	t.Run("partial conflicts", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10), entry(u2, addrA, 20), entry(u3, addrB, 30))
		h := handler.NewTxHandler(pool)
		t1 := spend(privA, ids(u1, u2), ledger.NewOutput(addrC, 30))
		t2 := spend(privA, ids(u2), ledger.NewOutput(addrC, 20))
		t3 := spend(privB, ids(u3), ledger.NewOutput(addrC, 30))
		bad := spend(privA, ids(u3), ledger.NewOutput(addrC, 30))

		accepted := h.HandleTxs([]*ledger.Transaction{bad, t1, t2, t3})
		require.EqualValues(t, []*ledger.Transaction{t1, t3}, accepted)
		require.EqualValues(t, 0, h.UTXOPool().Len())
	})
	t.Run("never removes unclaimed", func(t *testing.T) {
		unrelated := utxo("other", 0)
		pool := poolWith(entry(u1, addrA, 10), entry(u2, addrA, 20), entry(unrelated, addrC, 1))
		h := handler.NewTxHandler(pool)
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		t2 := spend(privA, ids(u1, u2), ledger.NewOutput(addrB, 30))
		invalid := spend(privB, ids(u2), ledger.NewOutput(addrB, 20))

		accepted := h.HandleTxs([]*ledger.Transaction{t1, t2, invalid})
		require.EqualValues(t, []*ledger.Transaction{t1}, accepted)

		claimed := make(map[ledger.OutputID]bool)
		for _, tx := range accepted {
			for _, in := range tx.Inputs {
				claimed[in.OutputID] = true
			}
		}
		for _, oid := range pool.OutputIDs() {
			require.EqualValues(t, !claimed[oid], h.UTXOPool().Contains(oid))
		}
	})
	t.Run("empty round", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool)
		require.EqualValues(t, 0, len(h.HandleTxs(nil)))
		require.EqualValues(t, 0, len(h.HandleTxs([]*ledger.Transaction{nil})))
		require.True(t, h.UTXOPool().Contains(u1))
	})
	t.Run("outputs are not inserted by default", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool)
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		t2 := spend(privB, ids(t1.ProducedOutputID(0)), ledger.NewOutput(addrC, 10))

		accepted := h.HandleTxs([]*ledger.Transaction{t1, t2})
		require.EqualValues(t, []*ledger.Transaction{t1}, accepted)
		require.False(t, h.UTXOPool().Contains(t1.ProducedOutputID(0)))

		accepted = h.HandleTxs([]*ledger.Transaction{t2})
		require.EqualValues(t, 0, len(accepted))
	})
	t.Run("output insertion", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool, handler.WithOutputInsertion())
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 7), ledger.NewOutput(addrA, 3))
		t2 := spend(privB, ids(t1.ProducedOutputID(0)), ledger.NewOutput(addrC, 7))
		t3 := spend(privA, ids(t1.ProducedOutputID(1)), ledger.NewOutput(addrC, 3))

		// chained spends come before the transaction they depend on.
		// After t1 is committed the rest are taken in candidate order
		accepted := h.HandleTxs([]*ledger.Transaction{t3, t2, t1})
		require.EqualValues(t, []*ledger.Transaction{t1, t3, t2}, accepted)
		require.EqualValues(t, 2, h.UTXOPool().Len())
		require.EqualValues(t, 10, h.UTXOPool().Balance(addrC))
	})
	t.Run("output insertion across rounds", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		h := handler.NewTxHandler(pool, handler.WithOutputInsertion())
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		t2 := spend(privB, ids(t1.ProducedOutputID(0)), ledger.NewOutput(addrC, 10))

		require.EqualValues(t, 1, len(h.HandleTxs([]*ledger.Transaction{t1})))
		require.True(t, h.UTXOPool().Contains(t1.ProducedOutputID(0)))
		require.EqualValues(t, 1, len(h.HandleTxs([]*ledger.Transaction{t2})))
		require.EqualValues(t, 10, h.UTXOPool().Balance(addrC))
	})
	t.Run("snapshot", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10), entry(u2, addrA, 10))
		h := handler.NewTxHandler(pool)
		snap := h.Snapshot()
		h.HandleTxs([]*ledger.Transaction{spend(privA, ids(u1), ledger.NewOutput(addrB, 10))})
		require.True(t, snap.Contains(u1))
		require.False(t, h.UTXOPool().Contains(u1))
	})
	t.Run("custom verifier", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10))
		rejectAll := func(_, _, _ []byte) bool { return false }
		h := handler.NewTxHandler(pool, handler.WithSignatureVerifier(rejectAll))
		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		require.False(t, h.IsValidTx(t1))
		require.EqualValues(t, 0, len(h.HandleTxs([]*ledger.Transaction{t1})))
	})
	t.Run("indexer", func(t *testing.T) {
		pool := poolWith(entry(u1, addrA, 10), entry(u2, addrA, 20))
		inr := indexer.NewInMemory()
		require.NoError(t, inr.IndexPool(pool))
		h := handler.NewTxHandler(pool, handler.WithOutputInsertion(), handler.WithIndexer(inr))

		outs, err := inr.GetUTXOsForAddress(addrA, h.UTXOPool())
		require.NoError(t, err)
		require.EqualValues(t, 2, len(outs))

		t1 := spend(privA, ids(u1), ledger.NewOutput(addrB, 10))
		require.EqualValues(t, 1, len(h.HandleTxs([]*ledger.Transaction{t1})))

		outs, err = inr.GetUTXOsForAddress(addrA, h.UTXOPool())
		require.NoError(t, err)
		require.EqualValues(t, 1, len(outs))
		require.EqualValues(t, u2, outs[0].ID)

		outs, err = inr.GetUTXOsForAddress(addrB, h.UTXOPool())
		require.NoError(t, err)
		require.EqualValues(t, 1, len(outs))
		require.EqualValues(t, t1.ProducedOutputID(0), outs[0].ID)
	})
}

func TestWithBuilder(t *testing.T) {
	u := utxodb.NewUTXODB()
	require.NoError(t, u.TokensFromFaucet(addrA, 100))

	par, err := u.MakeED25519TransferInputs(privA)
	require.NoError(t, err)
	tx1, err := txbuilder.MakeTransferTransaction(par.WithTargetAddress(addrB).WithAmount(60))
	require.NoError(t, err)
	tx2, err := txbuilder.MakeTransferTransaction(par.WithTargetAddress(addrC).WithAmount(70))
	require.NoError(t, err)

	h := handler.NewTxHandler(u.Pool())
	require.True(t, h.IsValidTx(tx1))
	require.True(t, h.IsValidTx(tx2))
	accepted := h.HandleTxs([]*ledger.Transaction{tx1, tx2})
	require.EqualValues(t, []*ledger.Transaction{tx1}, accepted)
}
