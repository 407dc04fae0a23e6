package execution

import (
	"encoding/binary"
	"fmt"

	"github.com/wkennedy/trollup/internal/types"
)

// ReferenceExecutor is the in-process SVMExecutor the node ships with. It
// implements a minimal system-program transfer semantics — fee deduction
// from the fee payer, then a lamport transfer per instruction — adapted
// from the teacher's "set balance, bump nonce" model to this rollup's
// multi-account, multi-instruction transaction shape. A production
// deployment may substitute a real SVM-compatible runtime behind the same
// interface; the engine does not care which it is talking to.
type ReferenceExecutor struct{}

// NewReferenceExecutor returns the reference SVM executor.
func NewReferenceExecutor() *ReferenceExecutor {
	return &ReferenceExecutor{}
}

// Execute runs every transaction in order, applying its instructions to the
// accounts resolved through loader. A transaction that fails (insufficient
// balance, malformed transfer data) is reported as not-Executed; it does
// not block the rest of the batch (spec §4.4 step 5).
func (e *ReferenceExecutor) Execute(
	batch map[types.Digest]types.Transaction,
	order []types.Digest,
	fees FeeStructure,
	features FeatureSet,
	budget ComputeBudget,
	loader *AccountLoader,
) (map[types.Digest]ExecutionOutcome, error) {
	out := make(map[types.Digest]ExecutionOutcome, len(order))
	for _, id := range order {
		tx, ok := batch[id]
		if !ok {
			continue
		}
		touched, err := e.executeOne(tx, fees, loader)
		if err != nil {
			out[id] = ExecutionOutcome{Executed: false}
			continue
		}
		out[id] = ExecutionOutcome{Executed: true, Accounts: touched}
	}
	return out, nil
}

// executeOne applies one transaction's fee and transfer instructions,
// returning the post-execution snapshots of every account it touched.
func (e *ReferenceExecutor) executeOne(tx types.Transaction, fees FeeStructure, loader *AccountLoader) ([]types.AccountState, error) {
	if len(tx.AccountKeys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}
	payerKey := tx.AccountKeys[0]
	payer, err := loader.Load(payerKey)
	if err != nil {
		return nil, fmt.Errorf("loading fee payer: %w", err)
	}

	fee := fees.LamportsPerSignature * uint64(len(tx.Signatures))
	if payer.Balance < fee {
		return nil, fmt.Errorf("fee payer %x has insufficient balance for fee", payerKey)
	}
	payer.Balance -= fee

	touchedOrder := []types.Digest{payerKey}
	touched := map[types.Digest]types.AccountState{payerKey: payer}

	for i, ix := range tx.Instructions {
		if len(ix.AccountIndexes) < 2 {
			// Not a recognized transfer shape; no balance effect beyond the fee.
			continue
		}
		if len(ix.Data) != 8 {
			return nil, fmt.Errorf("instruction %d: transfer data must be an 8-byte amount", i)
		}
		amount := binary.LittleEndian.Uint64(ix.Data)

		fromIdx, toIdx := ix.AccountIndexes[0], ix.AccountIndexes[1]
		if int(fromIdx) >= len(tx.AccountKeys) || int(toIdx) >= len(tx.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: account index out of range", i)
		}
		fromKey, toKey := tx.AccountKeys[fromIdx], tx.AccountKeys[toIdx]

		from, ok := touched[fromKey]
		if !ok {
			from, err = loader.Load(fromKey)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: loading source account: %w", i, err)
			}
			touchedOrder = append(touchedOrder, fromKey)
		}
		to, ok := touched[toKey]
		if !ok {
			to, err = loader.Load(toKey)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: loading destination account: %w", i, err)
			}
			touchedOrder = append(touchedOrder, toKey)
		}

		if from.Balance < amount {
			return nil, fmt.Errorf("instruction %d: account %x has insufficient balance", i, fromKey)
		}
		from.Balance -= amount
		to.Balance += amount

		touched[fromKey] = from
		touched[toKey] = to
	}

	result := make([]types.AccountState, 0, len(touchedOrder))
	for _, key := range touchedOrder {
		acc := touched[key]
		loader.Put(acc)
		result = append(result, acc)
	}
	return result, nil
}
