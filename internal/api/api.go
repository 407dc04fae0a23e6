// Package api implements the node's HTTP surface (spec §6): submission and
// read-only query endpoints over the transaction pool, the three record
// stores, and the StateCommitment pending registry. Grounded on the
// teacher's pkg/server handler idiom — a *Handlers struct holding its
// dependencies plus a *log.Logger, one HandleX method per route, JSON
// responses written through a shared error helper — generalized from
// certen-validator's ledger/batch/attestation handler files onto this
// node's single combined surface.
package api

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/wkennedy/trollup/internal/pool"
	"github.com/wkennedy/trollup/internal/statecommitment"
	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
)

const (
	submitSuccessMessage = "Transaction submitted successfully"
	notFoundSentinel     = `{"status":"not found"}`
)

// Handlers bundles the node capabilities the HTTP surface reads from and
// writes to. Any nil field degrades its endpoints to 503, mirroring the
// teacher's nil-dependency checks.
type Handlers struct {
	TxPool           *pool.Pool[types.Transaction]
	AccountStore     statestore.Store
	BlockStore       statestore.Store
	TransactionStore statestore.Store
	Commitment       *statecommitment.Orchestrator
	logger           *log.Logger
	metrics          *metrics
}

// New constructs a Handlers value. A nil logger defaults to a
// "[TrollupAPI] "-prefixed stdlib logger, matching the teacher's
// NewXHandlers constructors.
func New(txPool *pool.Pool[types.Transaction], accountStore, blockStore, transactionStore statestore.Store, commitment *statecommitment.Orchestrator, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[TrollupAPI] ", log.LstdFlags)
	}
	pendingCount := func() int {
		if commitment == nil {
			return 0
		}
		return commitment.PendingCount()
	}
	return &Handlers{
		TxPool:           txPool,
		AccountStore:     accountStore,
		BlockStore:       blockStore,
		TransactionStore: transactionStore,
		Commitment:       commitment,
		logger:           logger,
		metrics:          newMetrics(pendingCount),
	}
}

// Mux builds the net/http.ServeMux routing every spec §6 endpoint to its
// handler, plus /metrics.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/send-transaction", h.HandleSendTransaction)
	mux.HandleFunc("/send-transaction-optimistic", h.HandleSendTransactionOptimistic)
	mux.HandleFunc("/get-transaction/", h.HandleGetTransaction)
	mux.HandleFunc("/get-all-transactions", h.HandleGetAllTransactions)
	mux.HandleFunc("/get-account/", h.HandleGetAccount)
	mux.HandleFunc("/get-all-accounts", h.HandleGetAllAccounts)
	mux.HandleFunc("/get-block/", h.HandleGetBlock)
	mux.HandleFunc("/get-latest-block", h.HandleGetLatestBlock)
	mux.HandleFunc("/get-all-blocks", h.HandleGetAllBlocks)
	mux.HandleFunc("/get-all-pending-commitments", h.HandleGetAllPendingCommitments)
	mux.HandleFunc("/get-pending-commitments/", h.HandleGetPendingCommitment)
	mux.Handle("/metrics", h.metrics.handler())
	return mux
}

// HandleHealth handles GET /health: 200 OK, empty body (spec §6).
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleSendTransaction handles POST /send-transaction (spec §6).
func (h *Handlers) HandleSendTransaction(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, false)
}

// HandleSendTransactionOptimistic handles POST /send-transaction-optimistic:
// identical to HandleSendTransaction but sets the optimistic flag on enqueue
// (spec §6).
func (h *Handlers) HandleSendTransactionOptimistic(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, true)
}

// submit implements spec §7's "user-visible behavior": submissions that
// pass basic shape validation always return a success string — real
// processing is asynchronous.
func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, optimistic bool) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.TxPool == nil {
		writeJSONError(w, "transaction pool not available", http.StatusServiceUnavailable)
		return
	}

	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSONError(w, "invalid transaction body", http.StatusBadRequest)
		return
	}
	if err := tx.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx.Optimistic = optimistic
	h.TxPool.Add(tx)
	h.metrics.transactionsSubmitted.Inc()

	json.NewEncoder(w).Encode(map[string]string{"status": submitSuccessMessage})
}

// HandleGetTransaction handles GET /get-transaction/{base58_signature}
// (spec §6). The transaction id is SHA-256 of the signature (spec §3,
// Transaction.Key), so the path segment decodes to a lookup key rather
// than the store key itself.
func (h *Handlers) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.TransactionStore == nil {
		writeJSONError(w, "transaction store not available", http.StatusServiceUnavailable)
		return
	}

	segment := strings.TrimPrefix(r.URL.Path, "/get-transaction/")
	if segment == "" || segment == r.URL.Path {
		writeJSONError(w, "signature required", http.StatusBadRequest)
		return
	}
	sig, err := types.ParseSignature(segment)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, ok, err := h.TransactionStore.Get(types.TransactionKeyFromSignature(sig))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.Write([]byte(notFoundSentinel))
		return
	}
	tx, err := types.UnmarshalTransaction(raw)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(tx)
}

// HandleGetAllTransactions handles GET /get-all-transactions (spec §6).
func (h *Handlers) HandleGetAllTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.TransactionStore == nil {
		writeJSONError(w, "transaction store not available", http.StatusServiceUnavailable)
		return
	}
	entries, err := h.TransactionStore.Iterate()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]types.Transaction, 0, len(entries))
	for _, e := range entries {
		tx, err := types.UnmarshalTransaction(e.Value)
		if err != nil {
			h.logger.Printf("skipping corrupt transaction record %x: %v", e.Key, err)
			continue
		}
		out = append(out, tx)
	}
	json.NewEncoder(w).Encode(out)
}

// HandleGetAccount handles GET /get-account/{base58_pubkey} (spec §6).
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.AccountStore == nil {
		writeJSONError(w, "account store not available", http.StatusServiceUnavailable)
		return
	}

	segment := strings.TrimPrefix(r.URL.Path, "/get-account/")
	if segment == "" || segment == r.URL.Path {
		writeJSONError(w, "public key required", http.StatusBadRequest)
		return
	}
	pk, err := types.ParsePublicKey(segment)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, ok, err := h.AccountStore.Get(pk.Digest())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.Write([]byte(notFoundSentinel))
		return
	}
	account, err := types.UnmarshalAccountState(raw)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(account)
}

// accountKV and blockKV are the raw (key, value) pair shapes returned by
// get-all-accounts and get-all-blocks (spec §6), the record's digest key
// alongside its decoded form.
type accountKV struct {
	Key   types.Digest       `json:"key"`
	Value types.AccountState `json:"value"`
}

type blockKV struct {
	Key   types.Digest `json:"key"`
	Value types.Block  `json:"value"`
}

// HandleGetAllAccounts handles GET /get-all-accounts (spec §6).
func (h *Handlers) HandleGetAllAccounts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.AccountStore == nil {
		writeJSONError(w, "account store not available", http.StatusServiceUnavailable)
		return
	}
	entries, err := h.AccountStore.Iterate()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]accountKV, 0, len(entries))
	for _, e := range entries {
		account, err := types.UnmarshalAccountState(e.Value)
		if err != nil {
			h.logger.Printf("skipping corrupt account record %x: %v", e.Key, err)
			continue
		}
		out = append(out, accountKV{Key: e.Key, Value: account})
	}
	json.NewEncoder(w).Encode(out)
}

// HandleGetBlock handles GET /get-block/{number} (spec §6). Block.Key is
// deterministic from the number (spec §3), so no index is needed.
func (h *Handlers) HandleGetBlock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.BlockStore == nil {
		writeJSONError(w, "block store not available", http.StatusServiceUnavailable)
		return
	}

	segment := strings.TrimPrefix(r.URL.Path, "/get-block/")
	if segment == "" || segment == r.URL.Path {
		writeJSONError(w, "block number required", http.StatusBadRequest)
		return
	}
	number, err := strconv.ParseUint(segment, 10, 64)
	if err != nil {
		writeJSONError(w, "invalid block number", http.StatusBadRequest)
		return
	}

	key := types.Block{Number: number}.Key()
	raw, ok, err := h.BlockStore.Get(key)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.Write([]byte(notFoundSentinel))
		return
	}
	block, err := types.UnmarshalBlock(raw)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(block)
}

// HandleGetLatestBlock handles GET /get-latest-block (spec §6): JSON or
// empty if no block has been finalized yet.
func (h *Handlers) HandleGetLatestBlock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.BlockStore == nil {
		writeJSONError(w, "block store not available", http.StatusServiceUnavailable)
		return
	}
	id, ok, err := h.BlockStore.GetLatestBlockID()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		return
	}
	raw, ok, err := h.BlockStore.Get(id)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.Write([]byte(notFoundSentinel))
		return
	}
	block, err := types.UnmarshalBlock(raw)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(block)
}

// HandleGetAllBlocks handles GET /get-all-blocks (spec §6).
func (h *Handlers) HandleGetAllBlocks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.BlockStore == nil {
		writeJSONError(w, "block store not available", http.StatusServiceUnavailable)
		return
	}
	entries, err := h.BlockStore.Iterate()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]blockKV, 0, len(entries))
	for _, e := range entries {
		block, err := types.UnmarshalBlock(e.Value)
		if err != nil {
			h.logger.Printf("skipping corrupt block record %x: %v", e.Key, err)
			continue
		}
		out = append(out, blockKV{Key: e.Key, Value: block})
	}
	json.NewEncoder(w).Encode(out)
}

// pendingView is the JSON shape for a single registry entry: the state
// root, the parked package, when it was inserted (Unix seconds), and its
// retry count.
type pendingView struct {
	StateRoot types.Digest                   `json:"state_root"`
	Package   *types.StateCommitmentPackage `json:"package"`
	SinceUnix int64                          `json:"since_unix"`
	Retries   int                            `json:"retries"`
}

// HandleGetAllPendingCommitments handles GET /get-all-pending-commitments
// (spec §6).
func (h *Handlers) HandleGetAllPendingCommitments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.Commitment == nil {
		writeJSONError(w, "state commitment not available", http.StatusServiceUnavailable)
		return
	}
	entries := h.Commitment.PendingEntries()
	out := make([]pendingView, 0, len(entries))
	for root, e := range entries {
		out = append(out, pendingView{
			StateRoot: root,
			Package:   e.Package,
			SinceUnix: e.Since.Unix(),
			Retries:   e.Retries,
		})
	}
	json.NewEncoder(w).Encode(out)
}

// HandleGetPendingCommitment handles
// GET /get-pending-commitments/{state_root_b64url} (spec §6).
func (h *Handlers) HandleGetPendingCommitment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.Commitment == nil {
		writeJSONError(w, "state commitment not available", http.StatusServiceUnavailable)
		return
	}

	segment := strings.TrimPrefix(r.URL.Path, "/get-pending-commitments/")
	if segment == "" || segment == r.URL.Path {
		writeJSONError(w, "state root required", http.StatusBadRequest)
		return
	}
	raw, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		writeJSONError(w, "invalid state root encoding", http.StatusBadRequest)
		return
	}
	if len(raw) != 32 {
		writeJSONError(w, "state root must be 32 bytes", http.StatusBadRequest)
		return
	}
	var root types.Digest
	copy(root[:], raw)

	entry, ok := h.Commitment.Pending(root)
	if !ok {
		w.Write([]byte(notFoundSentinel))
		return
	}
	json.NewEncoder(w).Encode(pendingView{
		StateRoot: root,
		Package:   entry.Package,
		SinceUnix: entry.Since.Unix(),
		Retries:   entry.Retries,
	})
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
