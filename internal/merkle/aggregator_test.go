package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/wkennedy/trollup/internal/types"
)

func leafOf(b byte) types.Digest {
	return sha256.Sum256([]byte{b})
}

func TestEmptyTreeRootIsAbsent(t *testing.T) {
	root, ok := buildTree(nil).Root()
	if ok {
		t.Error("expected no root for an empty tree")
	}
	if root != (types.Digest{}) {
		t.Errorf("got %x, want the zero digest", root)
	}
}

func TestSingleLeafRootEqualsLeaf(t *testing.T) {
	leaf := leafOf(1)
	root, ok := buildTree([]types.Digest{leaf}).Root()
	if !ok {
		t.Fatal("expected a root for a single-leaf tree")
	}
	if root != leaf {
		t.Errorf("got %x, want %x", root, leaf)
	}
}

func TestOddLeafCountDuplicatesLastNode(t *testing.T) {
	l1, l2, l3 := leafOf(1), leafOf(2), leafOf(3)
	got, ok := buildTree([]types.Digest{l1, l2, l3}).Root()
	if !ok {
		t.Fatal("expected a root for a three-leaf tree")
	}

	top := hashPair(l1, l2)
	bottom := hashPair(l3, l3)
	want := hashPair(top, bottom)
	if got != want {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestAggregatorUncommittedThenCommitMatchesRecomputedRoot(t *testing.T) {
	agg := New()
	accounts := []types.AccountState{
		{Address: types.Digest{1}},
		{Address: types.Digest{2}},
	}
	agg.StageAccounts(accounts)

	uncommitted, ok := agg.UncommittedRootAccounts()
	if !ok {
		t.Fatal("expected an uncommitted root after staging")
	}

	agg.Commit()
	committed, ok := agg.CommittedRootAccounts()
	if !ok {
		t.Fatal("expected a committed root after Commit")
	}
	if committed != uncommitted {
		t.Errorf("committed root %x does not match staged root %x", committed, uncommitted)
	}

	leaves := make([]types.Digest, len(accounts))
	for i, a := range accounts {
		leaves[i] = a.LeafHash()
	}
	recomputed, ok := RecomputeRoot(leaves)
	if !ok {
		t.Fatal("expected RecomputeRoot to produce a root")
	}
	if committed != recomputed {
		t.Errorf("committed root %x does not match recomputed root %x", committed, recomputed)
	}
}

func TestAggregatorAbortUncommittedRestoresPreviousCommittedRoot(t *testing.T) {
	agg := New()
	agg.StageAccounts([]types.AccountState{{Address: types.Digest{1}}})
	agg.Commit()
	before, ok := agg.CommittedRootAccounts()
	if !ok {
		t.Fatal("expected a committed root")
	}

	agg.StageAccounts([]types.AccountState{{Address: types.Digest{2}}})
	agg.AbortUncommitted()

	after, ok := agg.CommittedRootAccounts()
	if !ok {
		t.Fatal("expected a committed root after abort")
	}
	if before != after {
		t.Errorf("committed root changed across abort: got %x, want %x", after, before)
	}

	// Uncommitted root should also have reverted to the committed one.
	uncommitted, ok := agg.UncommittedRootAccounts()
	if !ok {
		t.Fatal("expected an uncommitted root after abort")
	}
	if uncommitted != before {
		t.Errorf("uncommitted root did not revert: got %x, want %x", uncommitted, before)
	}
}

func TestAggregatorPreservesInsertionOrder(t *testing.T) {
	agg := New()
	a1 := types.AccountState{Address: types.Digest{1}}
	a2 := types.AccountState{Address: types.Digest{2}}
	agg.StageAccounts([]types.AccountState{a1, a2})
	agg.Commit()

	forwardRoot, _ := agg.CommittedRootAccounts()

	agg2 := New()
	agg2.StageAccounts([]types.AccountState{a2, a1})
	agg2.Commit()
	reversedRoot, _ := agg2.CommittedRootAccounts()

	if forwardRoot == reversedRoot {
		t.Error("leaf order must affect the root")
	}
}

func TestLeafIndexAfterCommit(t *testing.T) {
	agg := New()
	a1 := types.AccountState{Address: types.Digest{1}}
	a2 := types.AccountState{Address: types.Digest{2}}
	agg.StageAccounts([]types.AccountState{a1, a2})
	agg.Commit()

	idx, ok := agg.LeafIndexAccounts(a2.LeafHash())
	if !ok {
		t.Fatal("expected to find a2's leaf index")
	}
	if idx != 1 {
		t.Errorf("got index %d, want 1", idx)
	}
}

func TestInclusionProofVerifies(t *testing.T) {
	leaves := []types.Digest{leafOf(1), leafOf(2), leafOf(3), leafOf(4)}
	tr := buildTree(leaves)
	root, ok := tr.Root()
	if !ok {
		t.Fatal("expected a root")
	}

	for i, leaf := range leaves {
		proof, ok := tr.Proof(i)
		if !ok {
			t.Fatalf("expected a proof for leaf %d", i)
		}
		if !VerifyProof(leaf, proof, root) {
			t.Errorf("proof for leaf %d did not verify", i)
		}
	}
}
