package validatorclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/wkennedy/trollup/internal/trollerr"
)

// pollInterval is how often Confirmer re-checks a pending L1 transaction.
const pollInterval = 2 * time.Second

// Confirmer polls the parent chain for a transaction's confirmation — the
// "poll the returned L1 signature until its L1 transaction is confirmed"
// step of the direct finalization path (spec §4.5). Wraps go-ethereum's
// ethclient, the same L1 access library the teacher's pkg/ethereum/client.go
// wraps.
type Confirmer struct {
	client *ethclient.Client
}

// NewConfirmer dials rpcURL and returns a Confirmer.
func NewConfirmer(rpcURL string) (*Confirmer, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, trollerr.Wrap(trollerr.Transient, "validatorclient.NewConfirmer", fmt.Errorf("dial %s: %w", rpcURL, err))
	}
	return &Confirmer{client: client}, nil
}

// AwaitConfirmation blocks (honoring ctx) until signature's transaction has
// at least one confirming block, or ctx is done.
func (c *Confirmer) AwaitConfirmation(ctx context.Context, signature string) error {
	txHash := common.HexToHash(signature)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == 0 {
				return trollerr.Wrap(trollerr.ProofInvalid, "validatorclient.AwaitConfirmation", fmt.Errorf("l1 transaction %s reverted", signature))
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return trollerr.Wrap(trollerr.Transient, "validatorclient.AwaitConfirmation", fmt.Errorf("poll receipt for %s: %w", signature, err))
		}

		select {
		case <-ctx.Done():
			return trollerr.Wrap(trollerr.Timeout, "validatorclient.AwaitConfirmation", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection.
func (c *Confirmer) Close() {
	c.client.Close()
}
