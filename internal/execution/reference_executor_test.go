package execution

import (
	"encoding/binary"
	"testing"

	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
)

func transferInstruction(from, to uint8, amount uint64) types.Instruction {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, amount)
	return types.Instruction{ProgramIDIndex: 2, AccountIndexes: []uint8{from, to}, Data: data}
}

func transferTx(payer, recipient types.Digest, amount uint64, optimistic bool) types.Transaction {
	return types.Transaction{
		Signatures:      []types.Signature{{1, 2, 3}},
		Header:          types.MessageHeader{NumRequiredSignatures: 1},
		AccountKeys:     []types.Digest{payer, recipient, {9, 9, 9}},
		RecentBlockhash: types.Digest{7},
		Instructions:    []types.Instruction{transferInstruction(0, 1, amount)},
		Optimistic:      optimistic,
	}
}

func TestReferenceExecutorAppliesTransfer(t *testing.T) {
	store := statestore.NewMemStore()
	loader := NewAccountLoader(store, nil, nil)
	exec := NewReferenceExecutor()

	payer, recipient := types.Digest{1}, types.Digest{2}
	tx := transferTx(payer, recipient, 1_000_000, false)
	id, err := tx.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}

	batch := map[types.Digest]types.Transaction{id: tx}
	results, err := exec.Execute(batch, []types.Digest{id}, DefaultFeeStructure(), nil, DefaultComputeBudget(), loader)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	outcome := results[id]
	if !outcome.Executed {
		t.Fatal("expected the transaction to execute")
	}

	payerAfter, err := loader.Load(payer)
	if err != nil {
		t.Fatalf("load payer: %v", err)
	}
	recipientAfter, err := loader.Load(recipient)
	if err != nil {
		t.Fatalf("load recipient: %v", err)
	}

	wantPayer := defaultSyntheticBalance - 1_000_000 - DefaultFeeStructure().LamportsPerSignature
	if payerAfter.Balance != wantPayer {
		t.Errorf("payer balance: got %d, want %d", payerAfter.Balance, wantPayer)
	}
	wantRecipient := defaultSyntheticBalance + 1_000_000
	if recipientAfter.Balance != wantRecipient {
		t.Errorf("recipient balance: got %d, want %d", recipientAfter.Balance, wantRecipient)
	}
}

func TestReferenceExecutorDropsInsufficientBalanceTransaction(t *testing.T) {
	store := statestore.NewMemStore()
	loader := NewAccountLoader(store, nil, nil)
	exec := NewReferenceExecutor()

	payer, recipient := types.Digest{3}, types.Digest{4}
	loader.Put(types.AccountState{Address: payer, Balance: 100})

	tx := transferTx(payer, recipient, 1_000_000, false)
	id, err := tx.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}

	batch := map[types.Digest]types.Transaction{id: tx}
	results, err := exec.Execute(batch, []types.Digest{id}, DefaultFeeStructure(), nil, DefaultComputeBudget(), loader)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if results[id].Executed {
		t.Error("expected the transaction to be dropped for insufficient balance")
	}
}

func TestReferenceExecutorProcessesBatchIndependently(t *testing.T) {
	store := statestore.NewMemStore()
	loader := NewAccountLoader(store, nil, nil)
	exec := NewReferenceExecutor()

	good := transferTx(types.Digest{5}, types.Digest{6}, 10, false)
	loader.Put(types.AccountState{Address: types.Digest{7}, Balance: 0})
	bad := transferTx(types.Digest{7}, types.Digest{8}, 10, false)
	bad.Signatures[0] = types.Signature{4, 4, 4}

	goodID, err := good.Key()
	if err != nil {
		t.Fatalf("good key: %v", err)
	}
	badID, err := bad.Key()
	if err != nil {
		t.Fatalf("bad key: %v", err)
	}

	batch := map[types.Digest]types.Transaction{goodID: good, badID: bad}
	order := []types.Digest{goodID, badID}
	results, err := exec.Execute(batch, order, DefaultFeeStructure(), nil, DefaultComputeBudget(), loader)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !results[goodID].Executed {
		t.Error("expected the good transaction to execute")
	}
	if results[badID].Executed {
		t.Error("expected the bad transaction to be dropped")
	}
}
