// Command trollup-node is the rollup node's process entrypoint: it reads
// the JSON config spec §6 names, wires the four StateStore instances, the
// TransactionPool/CommitmentPool, the ExecutionEngine, the StateCommitment
// orchestrator, the L1Watcher, and the HTTP surface, then runs until
// SIGINT/SIGTERM. Grounded on the teacher's main.go: sequential
// construction, one goroutine per long-lived task, signal.Notify-based
// shutdown, and a bounded context.WithTimeout for the final HTTP drain.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wkennedy/trollup/internal/api"
	"github.com/wkennedy/trollup/internal/config"
	"github.com/wkennedy/trollup/internal/execution"
	"github.com/wkennedy/trollup/internal/l1watcher"
	"github.com/wkennedy/trollup/internal/merkle"
	"github.com/wkennedy/trollup/internal/pool"
	"github.com/wkennedy/trollup/internal/proof"
	"github.com/wkennedy/trollup/internal/statecommitment"
	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
	"github.com/wkennedy/trollup/internal/validatorclient"
)

// shutdownTimeout bounds how long the HTTP server gets to drain once a
// shutdown signal arrives (matches the teacher's main.go); waiting for the
// background tasks to stop is not bounded by it.
const shutdownTimeout = 30 * time.Second

func main() {
	logger := log.New(log.Writer(), "[trollup-node] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	accountStore, err := statestore.NewGoLevelDBStore("accounts", cfg.AccountDBPath)
	if err != nil {
		logger.Fatalf("opening account store: %v", err)
	}
	blockStore, err := statestore.NewGoLevelDBStore("blocks", cfg.BlockDBPath)
	if err != nil {
		logger.Fatalf("opening block store: %v", err)
	}
	transactionStore, err := statestore.NewGoLevelDBStore("transactions", cfg.TransactionDBPath)
	if err != nil {
		logger.Fatalf("opening transaction store: %v", err)
	}
	optimisticStore, err := statestore.NewGoLevelDBStore("optimistic", cfg.OptimisticDBPath)
	if err != nil {
		logger.Fatalf("opening optimistic store: %v", err)
	}

	prefetch, err := parsePublicKeys(cfg.PrefetchProgramIDs)
	if err != nil {
		logger.Fatalf("parsing prefetch_program_ids: %v", err)
	}

	var fetcher execution.ChainAccountFetcher
	if len(prefetch) > 0 {
		endpoints, ok := cfg.Endpoints()
		if !ok {
			logger.Fatalf("network %q has no endpoints, required for account prefetch", cfg.Network)
		}
		fetcher, err = execution.NewEthChainFetcher(endpoints.RPC)
		if err != nil {
			logger.Fatalf("dialing parent chain for account prefetch: %v", err)
		}
	}
	loader := execution.NewAccountLoader(accountStore, prefetch, fetcher)

	txPool := pool.New[types.Transaction]()
	commitmentPool := pool.New[*types.StateCommitmentPackage]()

	engine := execution.New(execution.Config{
		TxPool:         txPool,
		CommitmentPool: commitmentPool,
		Executor:       execution.NewReferenceExecutor(),
		Loader:         loader,
		Fees:           execution.DefaultFeeStructure(),
		Features:       execution.NewFeatureSet(),
		Budget:         execution.DefaultComputeBudget(),
		BatchSize:      cfg.TransactionBatchAmount,
		Logger:         log.New(log.Writer(), "[ExecutionEngine] ", log.LstdFlags),
	})

	validator := validatorclient.New(cfg.ValidatorURL)

	var confirmer statecommitment.Confirmer = statecommitment.NoopConfirmer{}
	if endpoints, ok := cfg.Endpoints(); ok && endpoints.RPC != "" {
		c, err := validatorclient.NewConfirmer(endpoints.RPC)
		if err != nil {
			logger.Fatalf("dialing parent chain for confirmation: %v", err)
		}
		confirmer = c
	}

	anchorPDA, err := pdaDigest(cfg.SignatureVerifierProgramID)
	if err != nil {
		logger.Fatalf("parsing signature_verifier_program_id: %v", err)
	}

	var roots <-chan types.Digest
	var watcher *l1watcher.Watcher
	if endpoints, ok := cfg.Endpoints(); ok && endpoints.WS != "" {
		watcher = l1watcher.New(endpoints.WS, anchorPDA, log.New(log.Writer(), "[L1Watcher] ", log.LstdFlags))
		roots = watcher.Roots()
	}

	commitment := statecommitment.New(statecommitment.Config{
		Pool:              commitmentPool,
		Aggregator:        merkle.New(),
		ProofBackend:      proof.NewGroth16Backend(),
		Validator:         validator,
		Confirmer:         confirmer,
		AccountStore:      accountStore,
		BlockStore:        blockStore,
		TransactionStore:  transactionStore,
		OptimisticStore:   optimisticStore,
		Roots:             roots,
		OptimisticTimeout: time.Duration(cfg.OptimisticTimeoutSeconds) * time.Second,
		Logger:            log.New(log.Writer(), "[StateCommitment] ", log.LstdFlags),
	})

	handlers := api.New(txPool, accountStore, blockStore, transactionStore, commitment, log.New(log.Writer(), "[api] ", log.LstdFlags))
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handlers.Mux(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		engine.Start(groupCtx)
		<-groupCtx.Done()
		engine.Stop()
		return nil
	})
	group.Go(func() error {
		commitment.Start(groupCtx)
		<-groupCtx.Done()
		commitment.Stop()
		return nil
	})
	if watcher != nil {
		group.Go(func() error {
			watcher.Start(groupCtx)
			<-groupCtx.Done()
			watcher.Stop()
			return nil
		})
		go logWatcherErrors(groupCtx, watcher, logger)
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}
	if err := group.Wait(); err != nil {
		logger.Printf("background task error: %v", err)
	}

	logger.Printf("stopped")
}

// parsePublicKeys decodes a list of base58 program ids into digests
// suitable for AccountLoader's allowlist.
func parsePublicKeys(ids []string) ([]types.Digest, error) {
	out := make([]types.Digest, 0, len(ids))
	for _, id := range ids {
		pk, err := types.ParsePublicKey(id)
		if err != nil {
			return nil, err
		}
		out = append(out, pk.Digest())
	}
	return out, nil
}

// pdaDigest decodes a single base58 program id into the digest the
// L1Watcher subscribes to.
func pdaDigest(id string) (types.Digest, error) {
	pk, err := types.ParsePublicKey(id)
	if err != nil {
		return types.Digest{}, err
	}
	return pk.Digest(), nil
}

// logWatcherErrors surfaces the L1Watcher's non-fatal reconnect errors —
// the watcher retries internally, so these are observability only.
func logWatcherErrors(ctx context.Context, watcher *l1watcher.Watcher, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			logger.Printf("l1watcher: %v", err)
		}
	}
}
