package blockbuilder

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/wkennedy/trollup/internal/types"
)

func TestNextNumberStartsAtOneWithNoLatestBlock(t *testing.T) {
	if got := NextNumber(nil); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestNextNumberIncrementsFromLatest(t *testing.T) {
	latest := types.Block{Number: 41}
	if got := NextNumber(&latest); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestBuildAssemblesBlockFields(t *testing.T) {
	prev := types.Digest{1}
	txRoot := types.Digest{2}
	acctRoot := types.Digest{3}
	txIDs := []types.Digest{{4}, {5}}
	acctAddrs := []types.Digest{{6}}
	proof := []byte{0xde, 0xad}

	b := Build(7, prev, txRoot, acctRoot, proof, txIDs, acctAddrs)

	if b.Number != 7 {
		t.Errorf("Number: got %d, want 7", b.Number)
	}
	if b.PreviousBlockID != prev {
		t.Errorf("PreviousBlockID: got %x, want %x", b.PreviousBlockID, prev)
	}
	if b.TransactionRoot != txRoot {
		t.Errorf("TransactionRoot: got %x, want %x", b.TransactionRoot, txRoot)
	}
	if b.AccountRoot != acctRoot {
		t.Errorf("AccountRoot: got %x, want %x", b.AccountRoot, acctRoot)
	}
	if !bytes.Equal(b.Proof, proof) {
		t.Errorf("Proof: got %x, want %x", b.Proof, proof)
	}
	if !reflect.DeepEqual(b.TransactionIDs, txIDs) {
		t.Errorf("TransactionIDs: got %v, want %v", b.TransactionIDs, txIDs)
	}
	if !reflect.DeepEqual(b.AccountAddresses, acctAddrs) {
		t.Errorf("AccountAddresses: got %v, want %v", b.AccountAddresses, acctAddrs)
	}
}

func TestBuildCopiesSlicesDefensively(t *testing.T) {
	proof := []byte{1, 2, 3}
	txIDs := []types.Digest{{9}}

	b := Build(1, types.Digest{}, types.Digest{}, types.Digest{}, proof, txIDs, nil)
	proof[0] = 0xff
	txIDs[0] = types.Digest{8}

	if b.Proof[0] != 1 {
		t.Errorf("Proof was aliased: got %d, want 1", b.Proof[0])
	}
	if b.TransactionIDs[0] != (types.Digest{9}) {
		t.Errorf("TransactionIDs was aliased: got %x, want %x", b.TransactionIDs[0], types.Digest{9})
	}
}
