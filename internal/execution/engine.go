package execution

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wkennedy/trollup/internal/pool"
	"github.com/wkennedy/trollup/internal/types"
)

// State mirrors the Initialized→Running→Stopped machine spec §4.4 mandates
// for the ExecutionEngine. Stopped is terminal for the instance.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
)

// DefaultBatchSize is the engine's default per-iteration dequeue size
// (spec §4.4 step 1).
const DefaultBatchSize = 4

// idlePollInterval is how long Run sleeps after an empty dequeue before
// checking the pool again — spec §4.4 step 1's "yield and continue".
const idlePollInterval = 20 * time.Millisecond

// Config bundles the Engine's dependencies and tunables.
type Config struct {
	TxPool          *pool.Pool[types.Transaction]
	CommitmentPool  *pool.Pool[*types.StateCommitmentPackage]
	Executor        SVMExecutor
	Loader          *AccountLoader
	Fees            FeeStructure
	Features        FeatureSet
	Budget          ComputeBudget
	BatchSize       int
	Logger          *log.Logger
}

// Engine is the ExecutionEngine task (spec §4.4): dequeue, sanitize,
// execute, partition, enqueue, on repeat.
type Engine struct {
	mu sync.RWMutex

	txPool   *pool.Pool[types.Transaction]
	outPool  *pool.Pool[*types.StateCommitmentPackage]
	executor SVMExecutor
	loader   *AccountLoader
	fees     FeeStructure
	features FeatureSet
	budget   ComputeBudget
	batch    int
	logger   *log.Logger

	state  State
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Engine in the Initialized state.
func New(cfg Config) *Engine {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ExecutionEngine] ", log.LstdFlags)
	}
	return &Engine{
		txPool:   cfg.TxPool,
		outPool:  cfg.CommitmentPool,
		executor: cfg.Executor,
		loader:   cfg.Loader,
		fees:     cfg.Fees,
		features: cfg.Features,
		budget:   cfg.Budget,
		batch:    batch,
		logger:   logger,
		state:    StateInitialized,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Start transitions Initialized → Running and spawns the loop. Calling
// Start while already Running, or after Stop (Stopped is terminal), is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateInitialized {
		e.mu.Unlock()
		return
	}
	e.state = StateRunning
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop halts the loop and blocks until it has exited. Stopped is terminal —
// a stopped Engine must not be Start-ed again.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	e.mu.Unlock()

	<-e.doneCh

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		produced := e.step()
		if produced {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// step runs one iteration of spec §4.4's loop. It returns false when the
// pool was empty (the idle, non-fatal case).
func (e *Engine) step() bool {
	txs := e.txPool.NextN(e.batch)
	if len(txs) == 0 {
		return false
	}

	batch := make(map[types.Digest]types.Transaction, len(txs))
	order := make([]types.Digest, 0, len(txs))
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			e.logger.Printf("dropping malformed transaction: %v", err)
			continue
		}
		id, err := tx.Key()
		if err != nil {
			e.logger.Printf("dropping transaction with no id: %v", err)
			continue
		}
		batch[id] = tx
		order = append(order, id)
	}
	if len(order) == 0 {
		return true
	}

	results, err := e.executor.Execute(batch, order, e.fees, e.features, e.budget, e.loader)
	if err != nil {
		e.logger.Printf("executor batch failure, dropping batch: %v", err)
		return true
	}

	pkg := &types.StateCommitmentPackage{}
	for _, id := range order {
		outcome, ok := results[id]
		if !ok || !outcome.Executed {
			continue
		}
		tx := batch[id]
		pkg.Transactions = append(pkg.Transactions, tx)
		pkg.TransactionIDs = append(pkg.TransactionIDs, id)
		pkg.Accounts = append(pkg.Accounts, outcome.Accounts...)
		if tx.Optimistic {
			pkg.Optimistic = true
		}
	}
	if len(pkg.Transactions) == 0 {
		return true
	}

	e.outPool.Add(pkg)
	return true
}
