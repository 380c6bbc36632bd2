package handler

import (
	"errors"
	"fmt"

	"github.com/lunfardo314/txhandler/ledger"
	"github.com/lunfardo314/txhandler/ledger/utxopool"
)

// Validate checks the transaction against the pool and returns the reason of the first failed check.
// The pool is only read. The checks are:
// - every consumed output exists in the pool
// - no output is consumed twice by the transaction
// - every input is signed by the address of the output it consumes
// - no output has negative amount
// - sum of consumed amounts is not less than the sum of produced amounts
// nil verify means ed25519
func Validate(tx *ledger.Transaction, pool *utxopool.Pool, verify ledger.VerifyFunc) error {
	if tx == nil {
		return errors.New("nil transaction")
	}
	if verify == nil {
		verify = ledger.VerifyED25519
	}
	if err := checkStructure(tx); err != nil {
		return err
	}
	inSum, err := validateInputs(tx, pool, verify)
	if err != nil {
		return err
	}
	outSum, err := validateOutputs(tx)
	if err != nil {
		return err
	}
	if inSum < outSum {
		return fmt.Errorf("sum of inputs %d is less than sum of outputs %d", inSum, outSum)
	}
	return nil
}

// IsValid is the boolean form of Validate
func IsValid(tx *ledger.Transaction, pool *utxopool.Pool, verify ledger.VerifyFunc) bool {
	return Validate(tx, pool, verify) == nil
}

// checkStructure must pass before any signable digest is computed
func checkStructure(tx *ledger.Transaction) error {
	if len(tx.Inputs) > ledger.MaxNumElements {
		return fmt.Errorf("too many inputs: %d", len(tx.Inputs))
	}
	if len(tx.Outputs) > ledger.MaxNumElements {
		return fmt.Errorf("too many outputs: %d", len(tx.Outputs))
	}
	for i, in := range tx.Inputs {
		if in == nil {
			return fmt.Errorf("input #%d is nil", i)
		}
	}
	for i, out := range tx.Outputs {
		if out == nil {
			return fmt.Errorf("output #%d is nil", i)
		}
	}
	return nil
}

func validateInputs(tx *ledger.Transaction, pool *utxopool.Pool, verify ledger.VerifyFunc) (int64, error) {
	var sum int64
	claimed := make(map[ledger.OutputID]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		out, found := pool.Get(in.OutputID)
		if !found {
			return 0, fmt.Errorf("input #%d: output %s is not in the pool", i, in.OutputID.Short())
		}
		if _, already := claimed[in.OutputID]; already {
			return 0, fmt.Errorf("input #%d: output %s is consumed twice", i, in.OutputID.Short())
		}
		claimed[in.OutputID] = struct{}{}

		if !verify(out.Address, tx.SignableDigest(i), in.Signature) {
			return 0, fmt.Errorf("input #%d: invalid signature", i)
		}
		var ok bool
		if sum, ok = ledger.AddAmount(sum, out.Amount); !ok {
			return 0, fmt.Errorf("input #%d: arithmetic overflow", i)
		}
	}
	return sum, nil
}

func validateOutputs(tx *ledger.Transaction) (int64, error) {
	var sum int64
	for i, out := range tx.Outputs {
		if out.Amount < 0 {
			return 0, fmt.Errorf("output #%d: negative amount %d", i, out.Amount)
		}
		var ok bool
		if sum, ok = ledger.AddAmount(sum, out.Amount); !ok {
			return 0, fmt.Errorf("output #%d: arithmetic overflow", i)
		}
	}
	return sum, nil
}
