package proof

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/wkennedy/trollup/internal/trollerr"
	"github.com/wkennedy/trollup/internal/types"
)

// curve is the scalar field the account-root circuit is compiled over —
// BN254, the same curve the teacher's BLS circuit targets.
var curve = ecc.BN254

// Backend is the ProofBackend capability (spec §4.5 step 3): given a state
// root and an account set, produce a proof (carried in the package and the
// finalized block) together with two forms forwarded to the validator — the
// "prepared wire" and the public inputs. None of these is interpreted
// anywhere else in the node.
type Backend interface {
	// Prove returns (proof bytes, prepared-wire bytes, public-inputs bytes).
	Prove(root types.Digest, accounts []types.AccountState) ([]byte, []byte, []byte, error)
	// Verify checks a proof against its public inputs, for local sanity
	// checks and tests; the validator performs the authoritative check.
	Verify(proofBytes, publicInputsBytes []byte) (bool, error)
	// VerifyingKey returns the serialized verifying key the package carries
	// alongside its proof (types.StateCommitmentPackage.VerifyingKey).
	VerifyingKey() ([]byte, error)
}

// preparedWire is the JSON envelope forwarded to the validator (it is not
// stored in the package) — the "prepared" proof form spec §9 calls out as an
// internal ProofBackend detail.
type preparedWire struct {
	StateRoot  types.Digest `json:"state_root"`
	Commitment string       `json:"commitment"`
	Proof      []byte       `json:"proof"`
}

// publicInputs is the standalone public-input blob a verifier needs.
type publicInputs struct {
	Commitment string `json:"commitment"`
}

// Groth16Backend is the reference Backend: a Groth16 proof over
// accountRootCircuit, lazily set up on first use (mirrors the teacher's
// BLSZKProver.Initialize-on-demand shape).
type Groth16Backend struct {
	mu          sync.RWMutex
	cs          constraint.ConstraintSystem
	pk          groth16.ProvingKey
	vk          groth16.VerifyingKey
	initialized bool
}

// NewGroth16Backend returns a backend that compiles its circuit and runs
// the Groth16 trusted setup on the first call to Prove, Verify or
// VerifyingKey.
func NewGroth16Backend() *Groth16Backend {
	return &Groth16Backend{}
}

func (b *Groth16Backend) ensureSetup() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	var circuit accountRootCircuit
	cs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile account root circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	b.cs, b.pk, b.vk = cs, pk, vk
	b.initialized = true
	return nil
}

// Prove folds accounts' leaf hashes into four field lanes, proves knowledge
// of them against their polynomial commitment, and returns the proof
// alongside its two wire forms.
func (b *Groth16Backend) Prove(root types.Digest, accounts []types.AccountState) ([]byte, []byte, []byte, error) {
	if err := b.ensureSetup(); err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.Fatal, "proof.Prove", err)
	}

	lanes := laneHashesOf(accounts)
	modulus := curve.ScalarField()
	commitment := laneFold(lanes, modulus)

	assignment := &accountRootCircuit{
		Commitment: commitment,
		Lane0:      lanes[0],
		Lane1:      lanes[1],
		Lane2:      lanes[2],
		Lane3:      lanes[3],
	}
	witness, err := frontend.NewWitness(assignment, modulus)
	if err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.Fatal, "proof.Prove", fmt.Errorf("build witness: %w", err))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	gproof, err := groth16.Prove(b.cs, b.pk, witness)
	if err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.ProofInvalid, "proof.Prove", fmt.Errorf("groth16 prove: %w", err))
	}

	var proofBuf bytes.Buffer
	if _, err := gproof.WriteTo(&proofBuf); err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.Fatal, "proof.Prove", fmt.Errorf("serialize proof: %w", err))
	}

	commitmentHex := commitment.Text(16)
	wire, err := json.Marshal(preparedWire{StateRoot: root, Commitment: commitmentHex, Proof: proofBuf.Bytes()})
	if err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.Fatal, "proof.Prove", fmt.Errorf("marshal prepared wire: %w", err))
	}
	pub, err := json.Marshal(publicInputs{Commitment: commitmentHex})
	if err != nil {
		return nil, nil, nil, trollerr.Wrap(trollerr.Fatal, "proof.Prove", fmt.Errorf("marshal public inputs: %w", err))
	}

	return proofBuf.Bytes(), wire, pub, nil
}

// Verify reconstructs the proof and the public-only witness, then runs
// groth16.Verify.
func (b *Groth16Backend) Verify(proofBytes, publicInputsBytes []byte) (bool, error) {
	if err := b.ensureSetup(); err != nil {
		return false, trollerr.Wrap(trollerr.Fatal, "proof.Verify", err)
	}

	var pub publicInputs
	if err := json.Unmarshal(publicInputsBytes, &pub); err != nil {
		return false, trollerr.Wrap(trollerr.Invalid, "proof.Verify", fmt.Errorf("unmarshal public inputs: %w", err))
	}
	commitment, ok := new(big.Int).SetString(pub.Commitment, 16)
	if !ok {
		return false, trollerr.Wrap(trollerr.Invalid, "proof.Verify", fmt.Errorf("malformed commitment %q", pub.Commitment))
	}

	gproof := groth16.NewProof(curve)
	if _, err := gproof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, trollerr.Wrap(trollerr.Invalid, "proof.Verify", fmt.Errorf("deserialize proof: %w", err))
	}

	assignment := &accountRootCircuit{Commitment: commitment}
	publicWitness, err := frontend.NewWitness(assignment, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, trollerr.Wrap(trollerr.Fatal, "proof.Verify", fmt.Errorf("build public witness: %w", err))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := groth16.Verify(gproof, b.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyingKey serializes the verifying key, triggering setup if needed.
func (b *Groth16Backend) VerifyingKey() ([]byte, error) {
	if err := b.ensureSetup(); err != nil {
		return nil, trollerr.Wrap(trollerr.Fatal, "proof.VerifyingKey", err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var buf bytes.Buffer
	if _, err := b.vk.WriteTo(&buf); err != nil {
		return nil, trollerr.Wrap(trollerr.Fatal, "proof.VerifyingKey", err)
	}
	return buf.Bytes(), nil
}

// laneHashesOf XOR-folds every account's leaf hash into four 8-byte lanes,
// each reduced to a field element. This is the off-circuit companion to
// accountRootCircuit's Lane0..Lane3 private inputs.
func laneHashesOf(accounts []types.AccountState) [4]*big.Int {
	var lanes [4][8]byte
	for _, a := range accounts {
		leaf := a.LeafHash()
		for i := 0; i < 32; i++ {
			lanes[i/8][i%8] ^= leaf[i]
		}
	}
	var out [4]*big.Int
	for i, lane := range lanes {
		out[i] = new(big.Int).SetUint64(binary.BigEndian.Uint64(lane[:]))
	}
	return out
}

// laneFold is the off-circuit twin of foldCommitment: the same fixed
// polynomial, evaluated over big.Int and reduced mod the scalar field.
func laneFold(lanes [4]*big.Int, modulus *big.Int) *big.Int {
	r := big.NewInt(foldMixCoefficient)
	result := new(big.Int).Set(lanes[0])

	t1 := new(big.Int).Mul(lanes[1], r)
	result.Add(result, t1)

	r2 := new(big.Int).Mul(r, r)
	t2 := new(big.Int).Mul(lanes[2], r2)
	result.Add(result, t2)

	r3 := new(big.Int).Mul(r2, r)
	t3 := new(big.Int).Mul(lanes[3], r3)
	result.Add(result, t3)

	return result.Mod(result, modulus)
}

// CommitmentHash is a convenience used by tests and the API surface to
// render a proof's commitment as a digest-shaped value.
func CommitmentHash(commitment *big.Int) types.Digest {
	return sha256.Sum256(commitment.Bytes())
}
