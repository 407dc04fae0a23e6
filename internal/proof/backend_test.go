package proof

import (
	"math/big"
	"testing"

	"github.com/wkennedy/trollup/internal/types"
)

func sampleAccounts() []types.AccountState {
	return []types.AccountState{
		{Address: types.Digest{1}, Balance: 100},
		{Address: types.Digest{2}, Balance: 200},
	}
}

func TestLaneFoldIsDeterministic(t *testing.T) {
	accounts := sampleAccounts()
	lanes := laneHashesOf(accounts)
	modulus := curve.ScalarField()

	a := laneFold(lanes, modulus)
	b := laneFold(laneHashesOf(accounts), modulus)
	if a.Cmp(b) != 0 {
		t.Errorf("got %v, want %v", a, b)
	}
}

func TestLaneFoldChangesWithAccountSet(t *testing.T) {
	modulus := curve.ScalarField()
	a := laneFold(laneHashesOf(sampleAccounts()), modulus)

	other := append(sampleAccounts(), types.AccountState{Address: types.Digest{3}, Balance: 300})
	b := laneFold(laneHashesOf(other), modulus)

	if a.Cmp(b) == 0 {
		t.Error("expected the folded value to change with the account set")
	}
}

func TestGroth16BackendProveAndVerifyRoundTrip(t *testing.T) {
	backend := NewGroth16Backend()
	root := types.Digest{9}
	accounts := sampleAccounts()

	proofBytes, wire, pub, err := backend.Prove(root, accounts)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(proofBytes) == 0 {
		t.Error("expected non-empty proof bytes")
	}
	if len(wire) == 0 {
		t.Error("expected non-empty prepared wire")
	}
	if len(pub) == 0 {
		t.Error("expected non-empty public inputs")
	}

	ok, err := backend.Verify(proofBytes, pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected the proof to verify")
	}
}

func TestGroth16BackendRejectsMismatchedPublicInputs(t *testing.T) {
	backend := NewGroth16Backend()
	proofBytes, _, _, err := backend.Prove(types.Digest{1}, sampleAccounts())
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	_, _, otherPub, err := backend.Prove(types.Digest{2}, append(sampleAccounts(), types.AccountState{Address: types.Digest{5}}))
	if err != nil {
		t.Fatalf("prove other: %v", err)
	}

	ok, err := backend.Verify(proofBytes, otherPub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("expected verification to fail for mismatched public inputs")
	}
}

func TestGroth16BackendVerifyingKeyIsStable(t *testing.T) {
	backend := NewGroth16Backend()
	vk1, err := backend.VerifyingKey()
	if err != nil {
		t.Fatalf("verifying key: %v", err)
	}
	vk2, err := backend.VerifyingKey()
	if err != nil {
		t.Fatalf("verifying key: %v", err)
	}
	if string(vk1) != string(vk2) {
		t.Error("expected VerifyingKey to be stable across calls")
	}
}

func TestCommitmentHashIsDeterministic(t *testing.T) {
	c := big.NewInt(42)
	if CommitmentHash(c) != CommitmentHash(big.NewInt(42)) {
		t.Error("expected CommitmentHash to be deterministic")
	}
}

func TestNullBackendProveVerifyRoundTrip(t *testing.T) {
	backend := NewNullBackend()
	proofBytes, wire, pub, err := backend.Prove(types.Digest{1}, sampleAccounts())
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(wire) == 0 {
		t.Error("expected non-empty prepared wire")
	}

	ok, err := backend.Verify(proofBytes, pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected the proof to verify")
	}
}

func TestNullBackendRejectsForeignProof(t *testing.T) {
	backend := NewNullBackend()
	ok, err := backend.Verify([]byte("forged"), nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("expected a forged proof to be rejected")
	}
}
