// Package proof implements the ProofBackend capability (spec §4.5, §9): an
// opaque component that turns an account set into (proof, prepared-wire,
// public-inputs) bytes the rest of the node never interprets. Grounded on
// the teacher's BLS Groth16 circuit and prover
// (pkg/crypto/bls_zkp/circuit.go, prover.go) — same compile/Setup/Prove/
// Verify shape, same lightweight polynomial commitment in place of a full
// in-circuit hash.
package proof

import "github.com/consensys/gnark/frontend"

// foldMixCoefficient is the polynomial commitment's fixed mixing
// coefficient — the same constant the teacher's computePubkeyCommitment
// uses.
const foldMixCoefficient = 7

// accountRootCircuit proves knowledge of four "lane" field elements
// (Lane0..Lane3, derived off-circuit by laneHashesOf from the batch's
// account leaf hashes)
// that fold into the public Commitment. A real deployment would replace
// this with a circuit that verifies an actual in-circuit Merkle/hash
// argument; the rollup core treats the proof system as an opaque backend
// (spec §1, §9) and never inspects these bytes, so the polynomial stand-in
// exercises the same gnark Setup/Prove/Verify wiring a production circuit
// would.
type accountRootCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Lane0      frontend.Variable
	Lane1      frontend.Variable
	Lane2      frontend.Variable
	Lane3      frontend.Variable
}

func (c *accountRootCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Commitment, foldCommitment(api, c.Lane0, c.Lane1, c.Lane2, c.Lane3))
	return nil
}

// foldCommitment is the in-circuit half of the lane-folding polynomial;
// laneFold (backend.go) is its off-circuit big.Int twin.
func foldCommitment(api frontend.API, l0, l1, l2, l3 frontend.Variable) frontend.Variable {
	r := frontend.Variable(foldMixCoefficient)
	result := l0
	result = api.Add(result, api.Mul(l1, r))
	r2 := api.Mul(r, r)
	result = api.Add(result, api.Mul(l2, r2))
	r3 := api.Mul(r2, r)
	result = api.Add(result, api.Mul(l3, r3))
	return result
}
