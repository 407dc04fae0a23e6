package execution

import (
	"testing"

	"github.com/wkennedy/trollup/internal/statestore"
	"github.com/wkennedy/trollup/internal/types"
)

type fakeFetcher struct {
	accounts map[types.Digest]types.AccountState
}

func (f *fakeFetcher) FetchAccount(address types.Digest) (types.AccountState, bool, error) {
	acc, ok := f.accounts[address]
	return acc, ok, nil
}

func TestAccountLoaderPrefersCacheOverStore(t *testing.T) {
	store := statestore.NewMemStore()
	addr := types.Digest{1}
	if err := store.Put(addr, types.AccountState{Address: addr, Balance: 1}.MarshalCanonical()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loader := NewAccountLoader(store, nil, nil)
	loader.Put(types.AccountState{Address: addr, Balance: 99})

	acc, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if acc.Balance != 99 {
		t.Errorf("got balance %d, want 99", acc.Balance)
	}
}

func TestAccountLoaderFallsBackToStore(t *testing.T) {
	store := statestore.NewMemStore()
	addr := types.Digest{2}
	if err := store.Put(addr, types.AccountState{Address: addr, Balance: 42}.MarshalCanonical()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loader := NewAccountLoader(store, nil, nil)
	acc, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if acc.Balance != 42 {
		t.Errorf("got balance %d, want 42", acc.Balance)
	}
}

func TestAccountLoaderConsultsAllowlistedFetcher(t *testing.T) {
	store := statestore.NewMemStore()
	addr := types.Digest{3}
	fetcher := &fakeFetcher{accounts: map[types.Digest]types.AccountState{
		addr: {Address: addr, Balance: 7},
	}}
	loader := NewAccountLoader(store, []types.Digest{addr}, fetcher)

	acc, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if acc.Balance != 7 {
		t.Errorf("got balance %d, want 7", acc.Balance)
	}
}

func TestAccountLoaderSynthesizesUnseenAccount(t *testing.T) {
	store := statestore.NewMemStore()
	addr := types.Digest{4}
	loader := NewAccountLoader(store, nil, nil)

	acc, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if acc.Address != addr {
		t.Errorf("Address: got %x, want %x", acc.Address, addr)
	}
	if acc.Balance != uint64(defaultSyntheticBalance) {
		t.Errorf("Balance: got %d, want %d", acc.Balance, defaultSyntheticBalance)
	}
}

func TestAccountLoaderMemoizesLookups(t *testing.T) {
	store := statestore.NewMemStore()
	addr := types.Digest{5}
	if err := store.Put(addr, types.AccountState{Address: addr, Balance: 10}.MarshalCanonical()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loader := NewAccountLoader(store, nil, nil)
	first, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Mutate the store directly; the loader must not re-read it.
	if err := store.Put(addr, types.AccountState{Address: addr, Balance: 999}.MarshalCanonical()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	second, err := loader.Load(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if second.Balance != first.Balance {
		t.Errorf("got %d, want %d", second.Balance, first.Balance)
	}
}
