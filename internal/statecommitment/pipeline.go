package statecommitment

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/wkennedy/trollup/internal/blockbuilder"
	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/trollerr"
	"github.com/wkennedy/trollup/internal/types"
)

// processPackage drives one dequeued package through steps 1-3 common to
// both paths (spec §4.5), then branches into the direct or optimistic tail.
func (o *Orchestrator) processPackage(ctx context.Context, pkg *types.StateCommitmentPackage) {
	root, wire, err := o.stageAndProve(pkg)
	if err != nil {
		o.logger.Printf("dropping package: %v", err)
		o.aggregator.AbortUncommitted()
		return
	}

	if pkg.Optimistic {
		// Recompute-from-scratch (spec §9 Open Question, decided here): the
		// staged view is never left resident in the shared aggregator while
		// a package sits in the registry, since a later package's abort
		// would otherwise wipe it too. The registry keeps the account and
		// transaction set needed to restage on resolution.
		o.aggregator.AbortUncommitted()
		o.parkOptimistic(root, pkg)
		return
	}

	o.runDirectPath(ctx, root, wire, pkg)
}

// stageAndProve performs spec §4.5 steps 1-3: stage into the aggregator,
// read the uncommitted account root as new_state_root, and invoke the
// ProofBackend over the account set.
func (o *Orchestrator) stageAndProve(pkg *types.StateCommitmentPackage) (types.Digest, []byte, error) {
	o.aggregator.StageAccounts(pkg.Accounts)
	o.aggregator.StageTransactions(pkg.Transactions)

	root, _ := o.aggregator.UncommittedRootAccounts()
	_ = pkg.SetStateRoot(root) // new packages and freshAttempt copies carry no root yet

	proofBytes, wire, pub, err := o.proofBackend.Prove(root, pkg.Accounts)
	if err != nil {
		return types.Digest{}, nil, trollerr.Wrap(trollerr.ProofInvalid, "statecommitment.stageAndProve", err)
	}
	pkg.Proof = proofBytes
	pkg.PublicInputs = pub
	if vk, vkErr := o.proofBackend.VerifyingKey(); vkErr == nil {
		pkg.VerifyingKey = vk
	}
	return root, wire, nil
}

// runDirectPath performs spec §4.5's direct-path steps 4-5.
func (o *Orchestrator) runDirectPath(ctx context.Context, root types.Digest, wire []byte, pkg *types.StateCommitmentPackage) {
	sig, err := o.validator.Prove(ctx, root, wire, pkg.PublicInputs, pkg.VerifyingKey)
	if err != nil {
		o.logger.Printf("validator rejected package %x: %v", root, err)
		o.aggregator.AbortUncommitted()
		return
	}
	if err := o.confirmer.AwaitConfirmation(ctx, sig); err != nil {
		o.logger.Printf("l1 confirmation failed for %x: %v", root, err)
		o.aggregator.AbortUncommitted()
		return
	}
	if err := o.finalize(pkg); err != nil {
		o.logger.Printf("finalize failed for %x: %v", root, err)
	}
}

// parkOptimistic implements spec §4.5's optimistic-path steps 2-3: insert
// into the pending registry and persist a recovery shadow.
func (o *Orchestrator) parkOptimistic(root types.Digest, pkg *types.StateCommitmentPackage) {
	o.registry.insert(root, pkg, time.Now())
	if err := o.persistPending(root, pkg); err != nil {
		o.logger.Printf("failed to persist pending commitment %x: %v", root, err)
	}
}

// handleOnChain implements spec §4.5's "OnChain(r)" resolution: recompute
// Merkle artifacts for the registered package (its proof was already
// produced at insertion time) and finalize.
func (o *Orchestrator) handleOnChain(ctx context.Context, root types.Digest) {
	entry, ok := o.registry.get(root)
	if !ok {
		return
	}

	attempt := freshAttempt(entry.Package)
	attempt.Proof = append([]byte(nil), entry.Package.Proof...)
	attempt.PublicInputs = append([]byte(nil), entry.Package.PublicInputs...)
	attempt.VerifyingKey = append([]byte(nil), entry.Package.VerifyingKey...)

	o.aggregator.StageAccounts(attempt.Accounts)
	o.aggregator.StageTransactions(attempt.Transactions)
	if err := attempt.SetStateRoot(root); err != nil {
		o.logger.Printf("onchain resolution for %x: %v", root, err)
	}

	if err := o.finalize(attempt); err != nil {
		o.logger.Printf("finalize on l1 anchor for %x: %v", root, err)
		o.aggregator.AbortUncommitted()
	}
}

// handleTimeoutSweep implements spec §4.5's polling-tick duty: scan the
// registry for entries older than optimisticTimeout and retry each via the
// direct path.
func (o *Orchestrator) handleTimeoutSweep(ctx context.Context) {
	now := time.Now()
	for _, root := range o.registry.expired(now, o.optimisticTimeout) {
		o.retryViaDirectPath(ctx, root)
	}
}

// retryViaDirectPath implements spec §4.5's "TimeOut(r)" event: a direct-
// path validator round-trip recomputed from scratch. Success finalizes and
// clears the entry; failure leaves it for another cycle, up to retryLimit.
func (o *Orchestrator) retryViaDirectPath(ctx context.Context, root types.Digest) {
	entry, ok := o.registry.get(root)
	if !ok {
		return
	}

	attempt := freshAttempt(entry.Package)
	newRoot, wire, err := o.stageAndProve(attempt)
	if err != nil {
		o.logger.Printf("timeout retry proof failed for %x: %v", root, err)
		o.aggregator.AbortUncommitted()
		o.bumpOrDrop(root)
		return
	}

	sig, err := o.validator.Prove(ctx, newRoot, wire, attempt.PublicInputs, attempt.VerifyingKey)
	if err != nil {
		o.logger.Printf("timeout retry validator rejected %x: %v", root, err)
		o.aggregator.AbortUncommitted()
		o.bumpOrDrop(root)
		return
	}
	if err := o.confirmer.AwaitConfirmation(ctx, sig); err != nil {
		o.logger.Printf("timeout retry l1 confirmation failed for %x: %v", root, err)
		o.aggregator.AbortUncommitted()
		o.bumpOrDrop(root)
		return
	}
	if err := o.finalize(attempt); err != nil {
		o.logger.Printf("timeout retry finalize failed for %x: %v", root, err)
		return
	}
	// finalize clears the entry under the re-staged root; when commits made
	// since parking changed that root, the original entry is cleared here.
	if newRoot != root {
		o.registry.remove(root)
		if err := o.removePending(root); err != nil {
			o.logger.Printf("failed to clear persisted pending commitment %x: %v", root, err)
		}
	}
}

// bumpOrDrop increments an entry's retry count and discards it once the
// count reaches retryLimit (spec §4.5: "or drop after a bounded number of
// retries — configurable").
func (o *Orchestrator) bumpOrDrop(root types.Digest) {
	retries := o.registry.incrementRetries(root)
	if retries < o.retryLimit {
		return
	}
	o.logger.Printf("dropping pending commitment %x after %d retries", root, retries)
	o.registry.remove(root)
	if err := o.removePending(root); err != nil {
		o.logger.Printf("failed to clear persisted pending commitment %x: %v", root, err)
	}
}

// finalize is spec §4.5.1's seven-step finalization routine.
func (o *Orchestrator) finalize(pkg *types.StateCommitmentPackage) error {
	o.aggregator.Commit()

	accountEntries := make([]statestore.Entry, len(pkg.Accounts))
	for i, a := range pkg.Accounts {
		accountEntries[i] = statestore.Entry{Key: a.Key(), Value: a.MarshalCanonical()}
	}
	if err := o.accountStore.PutBatch(accountEntries); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}

	txEntries := make([]statestore.Entry, len(pkg.Transactions))
	for i, tx := range pkg.Transactions {
		key, err := tx.Key()
		if err != nil {
			return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
		}
		txEntries[i] = statestore.Entry{Key: key, Value: tx.MarshalCanonical()}
	}
	if err := o.transactionStore.PutBatch(txEntries); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}

	latest, err := o.latestBlock()
	if err != nil {
		return err
	}
	number := blockbuilder.NextNumber(latest)
	var previousID types.Digest
	if latest != nil {
		previousID = latest.Key()
	}

	accountRoot, _ := o.aggregator.CommittedRootAccounts()
	txRoot, _ := o.aggregator.CommittedRootTransactions()

	accountAddrs := make([]types.Digest, len(pkg.Accounts))
	for i, a := range pkg.Accounts {
		accountAddrs[i] = a.Address
	}

	block := blockbuilder.Build(number, previousID, txRoot, accountRoot, pkg.Proof, pkg.TransactionIDs, accountAddrs)

	if err := o.blockStore.Put(block.Key(), block.MarshalCanonical()); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}
	if err := o.blockStore.SetLatestBlockID(block.Key()); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}
	// The commit barrier (spec §4.5.1 step 7) spans all three physical
	// stores touched by this finalization; account/transaction writes are
	// visible to readers only once every store has committed.
	if err := o.accountStore.Commit(); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}
	if err := o.transactionStore.Commit(); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}
	if err := o.blockStore.Commit(); err != nil {
		return trollerr.Wrap(trollerr.Fatal, "statecommitment.finalize", err)
	}

	if root, ok := pkg.StateRoot(); ok {
		o.registry.remove(root)
		if err := o.removePending(root); err != nil {
			o.logger.Printf("failed to clear persisted pending commitment %x: %v", root, err)
		}
	}
	return nil
}

// latestBlock reads the block referenced by the latest-block-id slot, or
// nil if none has been finalized yet.
func (o *Orchestrator) latestBlock() (*types.Block, error) {
	id, ok, err := o.blockStore.GetLatestBlockID()
	if err != nil {
		return nil, trollerr.Wrap(trollerr.Fatal, "statecommitment.latestBlock", err)
	}
	if !ok {
		return nil, nil
	}
	raw, ok, err := o.blockStore.Get(id)
	if err != nil {
		return nil, trollerr.Wrap(trollerr.Fatal, "statecommitment.latestBlock", err)
	}
	if !ok {
		return nil, trollerr.New(trollerr.Fatal, "statecommitment.latestBlock", "latest block id %x has no record", id)
	}
	block, err := types.UnmarshalBlock(raw)
	if err != nil {
		return nil, trollerr.Wrap(trollerr.Fatal, "statecommitment.latestBlock", err)
	}
	return &block, nil
}

// persistPending writes the optimistic StateStore recovery shadow for a
// newly parked entry.
func (o *Orchestrator) persistPending(root types.Digest, pkg *types.StateCommitmentPackage) error {
	if err := o.optimisticStore.Put(pendingKey(root), pkg.MarshalCanonical()); err != nil {
		return err
	}
	return o.optimisticStore.Commit()
}

// removePending clears a resolved or discarded entry's recovery shadow.
func (o *Orchestrator) removePending(root types.Digest) error {
	if err := o.optimisticStore.Delete(pendingKey(root)); err != nil {
		return err
	}
	return o.optimisticStore.Commit()
}

func pendingKey(root types.Digest) types.Digest {
	return sha256.Sum256(append([]byte(registryKeyPrefix), root[:]...))
}

// freshAttempt strips a package down to its raw account/transaction content,
// discarding any prior proof or assigned state root, for a from-scratch
// Merkle restage.
func freshAttempt(pkg *types.StateCommitmentPackage) *types.StateCommitmentPackage {
	return &types.StateCommitmentPackage{
		Optimistic:     pkg.Optimistic,
		Accounts:       append([]types.AccountState(nil), pkg.Accounts...),
		Transactions:   append([]types.Transaction(nil), pkg.Transactions...),
		TransactionIDs: append([]types.Digest(nil), pkg.TransactionIDs...),
	}
}
