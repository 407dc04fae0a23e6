// Package blockbuilder assembles the canonical Block record that closes out
// a finalization (spec §4.5.1 step 5). Grounded on the teacher's
// pkg/consensus/validator_block_builder.go: "the only function that may
// construct a [Block] per Golden Spec" is a single, pure assembly step with
// no side effects of its own — callers own persistence.
package blockbuilder

import "github.com/wkennedy/trollup/internal/types"

// Build assembles the next Block from a finalized package's Merkle roots and
// proof, chaining it to previousBlockID (the zero Digest if this is the
// first block).
func Build(number uint64, previousBlockID, transactionRoot, accountRoot types.Digest, proof []byte, transactionIDs, accountAddresses []types.Digest) types.Block {
	return types.Block{
		Number:           number,
		PreviousBlockID:  previousBlockID,
		TransactionRoot:  transactionRoot,
		AccountRoot:      accountRoot,
		Proof:            append([]byte(nil), proof...),
		TransactionIDs:   append([]types.Digest(nil), transactionIDs...),
		AccountAddresses: append([]types.Digest(nil), accountAddresses...),
	}
}

// NextNumber computes the number the next block should carry given the
// latest known block (spec §4.5.1 step 4): 1 if none exists yet, else
// latest.Number + 1.
func NextNumber(latest *types.Block) uint64 {
	if latest == nil {
		return 1
	}
	return latest.Number + 1
}
