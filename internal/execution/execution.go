// Package execution implements the ExecutionEngine (spec §4.4): the task
// that pulls transaction batches from the TransactionPool, invokes the SVM
// executor, and produces StateCommitmentPackages for the CommitmentPool.
//
// The SVM executor itself is specified as an external black box (spec §1,
// §6) — this package defines its contract (SVMExecutor, AccountLoader,
// FeatureSet, ComputeBudget, FeeStructure) and ships one reference,
// in-process implementation grounded on the teacher's nonce/balance
// execution model, adapted to the rollup's Instruction-based transaction
// shape.
package execution

import "github.com/wkennedy/trollup/internal/types"

// FeatureSet is the set of runtime feature flags enabled for a batch. The
// reference executor does not gate behavior on any flag today; it exists so
// the SVMExecutor contract matches what a real SVM-compatible backend
// expects to receive.
type FeatureSet map[string]struct{}

// NewFeatureSet builds a FeatureSet from a list of flag names.
func NewFeatureSet(flags ...string) FeatureSet {
	fs := make(FeatureSet, len(flags))
	for _, f := range flags {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports whether flag is enabled.
func (fs FeatureSet) Has(flag string) bool {
	_, ok := fs[flag]
	return ok
}

// ComputeBudget bounds the work a single transaction may perform.
type ComputeBudget struct {
	MaxComputeUnits uint64
	MaxCallDepth    uint32
}

// DefaultComputeBudget mirrors the conservative defaults the teacher's
// proving circuit assumes for a single batch element.
func DefaultComputeBudget() ComputeBudget {
	return ComputeBudget{MaxComputeUnits: 200_000, MaxCallDepth: 8}
}

// FeeStructure prices a transaction's signatures and compute units.
type FeeStructure struct {
	LamportsPerSignature   uint64
	LamportsPerComputeUnit uint64
}

// DefaultFeeStructure is the reference executor's fallback pricing.
func DefaultFeeStructure() FeeStructure {
	return FeeStructure{LamportsPerSignature: 5000, LamportsPerComputeUnit: 1}
}

// ExecutionOutcome is the per-transaction result the SVM executor reports
// for one id in the batch.
type ExecutionOutcome struct {
	// Executed is true when the transaction ran to completion. False means
	// the executor rejected or failed it; step 5 of the engine loop
	// discards such entries.
	Executed bool
	// Accounts holds the post-execution snapshots of every account the
	// transaction touched, in no particular order.
	Accounts []types.AccountState
}

// SVMExecutor is the contract the ExecutionEngine drives (spec §4.4 step
// 4). Implementations may run transactions in-process (ReferenceExecutor)
// or shell out to a real SVM-compatible runtime; the engine only depends on
// this interface.
type SVMExecutor interface {
	Execute(
		batch map[types.Digest]types.Transaction,
		order []types.Digest,
		fees FeeStructure,
		features FeatureSet,
		budget ComputeBudget,
		loader *AccountLoader,
	) (map[types.Digest]ExecutionOutcome, error)
}
