package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/wkennedy/trollup/internal/trollerr"
	"github.com/wkennedy/trollup/internal/types"
)

// rpcTimeout bounds a single FetchAccount round trip.
const rpcTimeout = 5 * time.Second

// EthChainFetcher is the ChainAccountFetcher the node ships with: it treats
// the AccountLoader's allowlisted keys as parent-chain addresses (the low 20
// bytes of the digest) and reconstructs a types.AccountState from the
// balance and contract code an ordinary Ethereum JSON-RPC endpoint reports.
// Grounded on the teacher's pkg/ethereum/client.go (ethclient.Dial, a thin
// struct wrapping *ethclient.Client, fmt.Errorf("...: %w", err) wrapping).
type EthChainFetcher struct {
	client *ethclient.Client
}

// NewEthChainFetcher dials rpcURL and returns a fetcher bound to it.
func NewEthChainFetcher(rpcURL string) (*EthChainFetcher, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, trollerr.Wrap(trollerr.Transient, "execution.NewEthChainFetcher", fmt.Errorf("dial %s: %w", rpcURL, err))
	}
	return &EthChainFetcher{client: client}, nil
}

// FetchAccount reads address's balance and code from the parent chain; the
// code becomes the account's Data.
// An address with zero balance and no code is reported not-found so the
// caller falls through to the synthesized default account, same as a store
// miss.
func (f *EthChainFetcher) FetchAccount(address types.Digest) (types.AccountState, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	ethAddr := common.BytesToAddress(address[12:])

	balance, err := f.client.BalanceAt(ctx, ethAddr, nil)
	if err != nil {
		return types.AccountState{}, false, trollerr.Wrap(trollerr.Transient, "execution.FetchAccount", fmt.Errorf("balance at %s: %w", ethAddr, err))
	}
	code, err := f.client.CodeAt(ctx, ethAddr, nil)
	if err != nil {
		return types.AccountState{}, false, trollerr.Wrap(trollerr.Transient, "execution.FetchAccount", fmt.Errorf("code at %s: %w", ethAddr, err))
	}

	if balance.Sign() == 0 && len(code) == 0 {
		return types.AccountState{}, false, nil
	}

	acc := types.AccountState{
		Address: address,
		Balance: balance.Uint64(),
		Owner:   systemProgramOwner,
	}
	if len(code) > 0 {
		acc.Data = code
	}
	return acc, true, nil
}
