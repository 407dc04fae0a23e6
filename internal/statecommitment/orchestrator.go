// Package statecommitment implements the StateCommitment orchestrator
// (spec §4.5): consumes CommitmentPool packages and drives them through the
// direct or optimistic finalization path, holding the pending-commitment
// registry and the Merkle aggregator. Grounded on a fusion of the teacher's
// pkg/batch/scheduler.go (timer-driven state machine) and
// pkg/batch/confirmation_tracker.go (polling + background resolution);
// the pending registry's persistence layout follows pkg/ledger/store.go's
// meta-plus-per-entry KV key scheme.
package statecommitment

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wkennedy/trollup/internal/merkle"
	"github.com/wkennedy/trollup/internal/pool"
	"github.com/wkennedy/trollup/internal/proof"
	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
)

// State mirrors execution.Engine's lifecycle: every long-lived task in the
// node independently walks Initialized -> Running -> Stopped (spec §4.5).
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateStopped
)

const (
	// DefaultOptimisticTimeout is the "optimistic_timeout" default (spec §4.5).
	DefaultOptimisticTimeout = 60 * time.Second
	// DefaultRetryLimit bounds how many TimeOut retries an optimistic entry
	// tolerates before being dropped (spec §9 Open Question, decided here).
	DefaultRetryLimit = 3

	idlePollInterval = 20 * time.Millisecond
)

// Config wires an Orchestrator's dependencies. Accounts, blocks, and
// transactions are persisted to three distinct stores rather than one —
// spec §6's config contract names "four DB paths (account/block/
// transaction/optimistic)", so the single logical StateStore capability
// (spec §4.1) is backed by four physical instances here.
type Config struct {
	Pool             *pool.Pool[*types.StateCommitmentPackage]
	Aggregator       *merkle.Aggregator
	ProofBackend     proof.Backend
	Validator        ValidatorProver
	Confirmer        Confirmer
	AccountStore     statestore.Store
	BlockStore       statestore.Store
	TransactionStore statestore.Store
	OptimisticStore  statestore.Store
	// Roots is the L1Watcher's anchored-state-root channel. May be nil in
	// deployments that rely solely on the timeout sweep.
	Roots             <-chan types.Digest
	OptimisticTimeout time.Duration
	RetryLimit        int
	Logger            *log.Logger
}

// Orchestrator is the StateCommitment pipeline.
type Orchestrator struct {
	pool              *pool.Pool[*types.StateCommitmentPackage]
	aggregator        *merkle.Aggregator
	proofBackend      proof.Backend
	validator         ValidatorProver
	confirmer         Confirmer
	accountStore      statestore.Store
	blockStore        statestore.Store
	transactionStore  statestore.Store
	optimisticStore   statestore.Store
	registry          *registry
	roots             <-chan types.Digest
	optimisticTimeout time.Duration
	retryLimit        int
	logger            *log.Logger

	mu     sync.RWMutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns an Orchestrator in the Initialized state.
func New(cfg Config) *Orchestrator {
	if cfg.OptimisticTimeout <= 0 {
		cfg.OptimisticTimeout = DefaultOptimisticTimeout
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.Confirmer == nil {
		cfg.Confirmer = NoopConfirmer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[StateCommitment] ", log.LstdFlags)
	}
	o := &Orchestrator{
		pool:              cfg.Pool,
		aggregator:        cfg.Aggregator,
		proofBackend:      cfg.ProofBackend,
		validator:         cfg.Validator,
		confirmer:         cfg.Confirmer,
		accountStore:      cfg.AccountStore,
		blockStore:        cfg.BlockStore,
		transactionStore:  cfg.TransactionStore,
		optimisticStore:   cfg.OptimisticStore,
		registry:          newRegistry(),
		roots:             cfg.Roots,
		optimisticTimeout: cfg.OptimisticTimeout,
		retryLimit:        cfg.RetryLimit,
		logger:            cfg.Logger,
		state:             StateInitialized,
	}
	o.recoverPending()
	return o
}

// recoverPending hydrates the registry from the optimistic StateStore,
// restoring any commitments parked before a restart (spec §4.5: "persist
// the package in the optimistic StateStore so the registry survives
// restarts").
func (o *Orchestrator) recoverPending() {
	if o.optimisticStore == nil {
		return
	}
	entries, err := o.optimisticStore.Iterate()
	if err != nil {
		o.logger.Printf("failed to recover pending commitments: %v", err)
		return
	}
	now := time.Now()
	for _, e := range entries {
		pkg, err := types.UnmarshalStateCommitmentPackage(e.Value)
		if err != nil {
			o.logger.Printf("dropping corrupt pending commitment %x: %v", e.Key, err)
			continue
		}
		root, ok := pkg.StateRoot()
		if !ok {
			continue
		}
		o.registry.insert(root, pkg, now)
	}
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// PendingCount reports the registry's current depth, for the API surface.
func (o *Orchestrator) PendingCount() int {
	return o.registry.size()
}

// PendingEntries returns a snapshot of the pending registry keyed by state
// root, for the get-all-pending-commitments endpoint.
func (o *Orchestrator) PendingEntries() map[types.Digest]*CommitmentEntry {
	return o.registry.all()
}

// Pending looks up a single registry entry by state root, for the
// get-pending-commitments/{state_root_b64url} endpoint.
func (o *Orchestrator) Pending(root types.Digest) (*CommitmentEntry, bool) {
	return o.registry.get(root)
}

// Start begins the consume-and-finalize loop. A second call while already
// Running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateInitialized {
		o.mu.Unlock()
		return
	}
	o.state = StateRunning
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	go o.run(ctx)
}

// Stop signals the loop to exit and blocks until it has. Terminal: once
// Stopped, the orchestrator cannot be restarted.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	stopCh := o.stopCh
	doneCh := o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
}

// run is the orchestrator's single cooperative loop (spec §5): it never
// processes more than one package or registry event concurrently.
func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	poolTicker := time.NewTicker(idlePollInterval)
	defer poolTicker.Stop()
	sweepTicker := time.NewTicker(o.optimisticTimeout)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case root := <-o.roots:
			o.handleOnChain(ctx, root)
		case <-sweepTicker.C:
			o.handleTimeoutSweep(ctx)
		case <-poolTicker.C:
			o.drainPool(ctx)
		}
	}
}

// drainPool processes every package currently queued, in FIFO order.
func (o *Orchestrator) drainPool(ctx context.Context) {
	for {
		pkg, ok := o.pool.Next()
		if !ok {
			return
		}
		o.processPackage(ctx, pkg)
	}
}
