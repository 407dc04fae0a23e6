package merkle

import (
	"sync"

	"github.com/wkennedy/trollup/internal/types"
)

// side tracks the independent staged/committed leaf sets for one of the
// two trees the Aggregator maintains.
type side struct {
	committedLeaves []types.Digest
	stagedExtra     []types.Digest // leaves appended since the last commit
	committedTree   *tree
}

func (s *side) uncommittedLeaves() []types.Digest {
	return append(append([]types.Digest(nil), s.committedLeaves...), s.stagedExtra...)
}

func (s *side) stage(leaves []types.Digest) {
	s.stagedExtra = append(s.stagedExtra, leaves...)
}

func (s *side) uncommittedRoot() (types.Digest, bool) {
	return buildTree(s.uncommittedLeaves()).Root()
}

func (s *side) committedRoot() (types.Digest, bool) {
	if s.committedTree == nil {
		return types.Digest{}, false
	}
	return s.committedTree.Root()
}

func (s *side) commit() {
	s.committedLeaves = s.uncommittedLeaves()
	s.stagedExtra = nil
	s.committedTree = buildTree(s.committedLeaves)
}

func (s *side) abort() {
	s.stagedExtra = nil
}

func (s *side) leafIndex(leafHash types.Digest) (int, bool) {
	if s.committedTree == nil {
		return 0, false
	}
	return s.committedTree.indexOf(leafHash)
}

// Aggregator maintains the accounts and transactions Merkle trees with
// staged insertion (spec §4.2): added leaves form an "uncommitted" root
// that can either be committed (become the new tree state) or aborted
// (rolled back). Owned exclusively by the StateCommitment orchestrator —
// spec §5 notes it is never shared across goroutines, so internal locking
// here is a convenience, not a concurrency requirement.
type Aggregator struct {
	mu           sync.Mutex
	accounts     side
	transactions side
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// StageAccounts appends the leaf hashes of records, in order, to the
// uncommitted accounts view.
func (a *Aggregator) StageAccounts(records []types.AccountState) {
	leaves := make([]types.Digest, len(records))
	for i, r := range records {
		leaves[i] = r.LeafHash()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts.stage(leaves)
}

// StageTransactions appends the leaf hashes of records, in order, to the
// uncommitted transactions view.
func (a *Aggregator) StageTransactions(records []types.Transaction) {
	leaves := make([]types.Digest, len(records))
	for i, r := range records {
		leaves[i] = r.LeafHash()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transactions.stage(leaves)
}

// UncommittedRootAccounts returns the root that would exist if Commit were
// called now, or false if no leaves (staged or committed) exist.
func (a *Aggregator) UncommittedRootAccounts() (types.Digest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accounts.uncommittedRoot()
}

// UncommittedRootTransactions is the transactions-tree analogue of
// UncommittedRootAccounts.
func (a *Aggregator) UncommittedRootTransactions() (types.Digest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transactions.uncommittedRoot()
}

// CommittedRootAccounts returns the accounts tree's committed root.
func (a *Aggregator) CommittedRootAccounts() (types.Digest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accounts.committedRoot()
}

// CommittedRootTransactions returns the transactions tree's committed root.
func (a *Aggregator) CommittedRootTransactions() (types.Digest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transactions.committedRoot()
}

// Commit promotes staged leaves on both trees to committed state.
func (a *Aggregator) Commit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts.commit()
	a.transactions.commit()
}

// AbortUncommitted discards staged leaves on both trees, leaving the
// committed state untouched.
func (a *Aggregator) AbortUncommitted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts.abort()
	a.transactions.abort()
}

// LeafIndexAccounts returns the position of a committed account leaf, for
// proof generation.
func (a *Aggregator) LeafIndexAccounts(leafHash types.Digest) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accounts.leafIndex(leafHash)
}

// LeafIndexTransactions returns the position of a committed transaction
// leaf, for proof generation.
func (a *Aggregator) LeafIndexTransactions(leafHash types.Digest) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transactions.leafIndex(leafHash)
}

// RecomputeRoot recomputes the Merkle root directly from a leaf set,
// independent of any Aggregator instance. Used to verify invariant 2/3
// (recomputing a finalized block's root from its account set must match
// the stored root) and to validate inclusion proofs against block data.
func RecomputeRoot(leaves []types.Digest) (types.Digest, bool) {
	return buildTree(leaves).Root()
}
