package execution

import (
	"sync"

	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
)

// ChainAccountFetcher resolves an account from the parent chain. Only keys
// on the AccountLoader's prefetch allowlist are ever routed here (spec
// §4.4's AccountLoader contract) — it is not a general fallback.
type ChainAccountFetcher interface {
	FetchAccount(address types.Digest) (types.AccountState, bool, error)
}

// systemProgramOwner is the synthesized owner for accounts that have never
// been seen before: spec §4.4 calls for "a default account (high balance,
// system-program owner)".
var systemProgramOwner = types.Digest{}

// defaultSyntheticBalance is the "high balance" spec §4.4 mandates for
// unseen accounts, chosen so a reasonable burst of transfers never starves
// an account the engine has never persisted.
const defaultSyntheticBalance = 1_000_000_000_000

// AccountLoader resolves a 32-byte key to an account-shared-data view for
// the SVM executor, per the resolution order in spec §4.4: in-memory cache
// → StateStore → prefetch allowlist (fetched from the parent chain, then
// cached) → a synthesized default account. Every lookup is memoized for
// the loader's lifetime.
type AccountLoader struct {
	mu        sync.RWMutex
	cache     map[types.Digest]types.AccountState
	store     statestore.Store
	allowlist map[types.Digest]struct{}
	fetcher   ChainAccountFetcher
}

// NewAccountLoader builds a loader bound to a StateStore, an allowlist of
// program ids the parent chain should be consulted for, and the fetcher
// used to do that consultation. fetcher may be nil if allowlist is empty.
func NewAccountLoader(store statestore.Store, allowlist []types.Digest, fetcher ChainAccountFetcher) *AccountLoader {
	al := &AccountLoader{
		cache:     make(map[types.Digest]types.AccountState),
		store:     store,
		allowlist: make(map[types.Digest]struct{}, len(allowlist)),
		fetcher:   fetcher,
	}
	for _, id := range allowlist {
		al.allowlist[id] = struct{}{}
	}
	return al
}

// Load resolves address, memoizing the result regardless of which tier of
// the resolution order answered it. The cache is read-mostly: a hit only
// ever takes the read lock; only a miss escalates to the write lock.
func (al *AccountLoader) Load(address types.Digest) (types.AccountState, error) {
	al.mu.RLock()
	acc, ok := al.cache[address]
	al.mu.RUnlock()
	if ok {
		return acc, nil
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	if acc, ok := al.cache[address]; ok {
		return acc, nil
	}

	if raw, ok, err := al.store.Get(address); err != nil {
		return types.AccountState{}, err
	} else if ok {
		acc, err := types.UnmarshalAccountState(raw)
		if err != nil {
			return types.AccountState{}, err
		}
		al.cache[address] = acc
		return acc, nil
	}

	if _, allowed := al.allowlist[address]; allowed && al.fetcher != nil {
		if acc, ok, err := al.fetcher.FetchAccount(address); err != nil {
			return types.AccountState{}, err
		} else if ok {
			al.cache[address] = acc
			return acc, nil
		}
	}

	acc := types.AccountState{
		Address: address,
		Balance: defaultSyntheticBalance,
		Owner:   systemProgramOwner,
	}
	al.cache[address] = acc
	return acc, nil
}

// Put overwrites the cached view of an account, used by the reference
// executor to record post-execution state without a round trip through the
// StateStore (which only happens at finalization, spec §4.5.1).
func (al *AccountLoader) Put(acc types.AccountState) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.cache[acc.Address] = acc
}
