// Package types holds the rollup's canonical record kinds (spec §3):
// AccountState, Transaction, Block, and StateCommitmentPackage. Every record
// kind has a MarshalCanonical method and a matching UnmarshalX decoder
// (UnmarshalAccountState, UnmarshalTransaction, ...), the deterministic
// little-endian wire format that
// backs both StateStore persistence and the Merkle leaf hashes the
// aggregator stages.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Digest is a 32-byte opaque identifier: an address, a blockhash, a
// transaction id, a Merkle root.
type Digest [32]byte

func (d Digest) Bytes() []byte { return d[:] }

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// MarshalJSON renders a Digest as a hex string rather than a 32-element
// number array, so it round-trips cleanly through the HTTP surface (spec §6).
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Digest) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	raw, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	if len(raw) != len(d) {
		return fmt.Errorf("digest: expected %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return nil
}

// Signature is a 64-byte Ed25519-shaped signature, per spec §3. It marshals
// to/from JSON as a base58 string, matching the HTTP surface's
// {base58_signature} path parameters (spec §6).
type Signature [64]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	decoded, err := ParseSignature(str)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// ParseSignature decodes a base58-encoded 64-byte signature, as carried in
// the {base58_signature} path parameter (spec §6).
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("signature: %w", err)
	}
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("signature: expected %d bytes, got %d", len(sig), len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// PublicKey is a 32-byte account/validator public key, per spec §3. It
// marshals to/from JSON as a base58 string, matching the HTTP surface's
// {base58_pubkey} path parameters (spec §6).
type PublicKey [32]byte

func (p PublicKey) String() string { return base58.Encode(p[:]) }

func (p PublicKey) Bytes() []byte { return p[:] }

// Digest views the public key as a Digest, since both are 32-byte
// identifiers and account addresses are keyed by Digest (spec §3).
func (p PublicKey) Digest() Digest { return Digest(p) }

func (p PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PublicKey) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	decoded, err := ParsePublicKey(str)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// ParsePublicKey decodes a base58-encoded 32-byte public key, as carried in
// the {base58_pubkey} path parameter (spec §6).
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("public key: %w", err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("public key: expected %d bytes, got %d", len(pk), len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// AccountState is the canonical account record (spec §3).
type AccountState struct {
	Address    Digest
	Balance    uint64
	Data       []byte
	Owner      Digest
	Executable bool
	RentEpoch  uint64
}

// Key returns the StateStore key for this account: its address.
func (a AccountState) Key() Digest { return a.Address }

// MarshalCanonical returns the deterministic LE encoding of the account.
func (a AccountState) MarshalCanonical() []byte {
	e := newEncoder()
	e.raw(a.Address[:])
	e.u64(a.Balance)
	e.bytesVec(a.Data)
	e.raw(a.Owner[:])
	e.bool(a.Executable)
	e.u64(a.RentEpoch)
	return e.bytes()
}

// UnmarshalAccountState decodes an AccountState from its canonical encoding.
func UnmarshalAccountState(b []byte) (AccountState, error) {
	d := newDecoder(b)
	var a AccountState
	addr, err := d.raw(32)
	if err != nil {
		return a, fmt.Errorf("account address: %w", err)
	}
	copy(a.Address[:], addr)
	if a.Balance, err = d.u64(); err != nil {
		return a, fmt.Errorf("account balance: %w", err)
	}
	if a.Data, err = d.bytesVec(); err != nil {
		return a, fmt.Errorf("account data: %w", err)
	}
	owner, err := d.raw(32)
	if err != nil {
		return a, fmt.Errorf("account owner: %w", err)
	}
	copy(a.Owner[:], owner)
	if a.Executable, err = d.boolean(); err != nil {
		return a, fmt.Errorf("account executable: %w", err)
	}
	if a.RentEpoch, err = d.u64(); err != nil {
		return a, fmt.Errorf("account rent epoch: %w", err)
	}
	return a, nil
}

// LeafHash is the SHA-256 of the canonical encoding, used as a Merkle leaf.
func (a AccountState) LeafHash() Digest {
	return sha256.Sum256(a.MarshalCanonical())
}

// MessageHeader mirrors the three-byte transaction header (spec §3).
type MessageHeader struct {
	NumRequiredSignatures uint8
	NumReadonlySigned     uint8
	NumReadonlyUnsigned   uint8
}

// Instruction references a program by index into the transaction's account
// key vector, plus the accounts it touches (also by index) and opaque data.
type Instruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// Transaction is the canonical rollup-form transaction (spec §3).
type Transaction struct {
	Signatures       []Signature
	Header           MessageHeader
	AccountKeys      []Digest
	RecentBlockhash  Digest
	Instructions     []Instruction
	Optimistic       bool
}

// TransactionKeyFromSignature computes the transaction id a given signature
// would produce, without needing the rest of the transaction. Used by the
// HTTP surface's get-transaction/{base58_signature} lookup (spec §6).
func TransactionKeyFromSignature(sig Signature) Digest {
	return sha256.Sum256(sig[:])
}

// Key returns the transaction id: SHA-256(signatures[0]). Per spec §9 this
// is the mandated key — not the raw signature, and not a hash of any other
// field.
func (t Transaction) Key() (Digest, error) {
	if len(t.Signatures) == 0 {
		return Digest{}, fmt.Errorf("transaction has no signatures")
	}
	return TransactionKeyFromSignature(t.Signatures[0]), nil
}

// Validate performs sanitization (spec §4.4 step 2): header counts in
// range, all account/program indexes in range, no duplicate account keys.
func (t Transaction) Validate() error {
	if len(t.Signatures) == 0 {
		return fmt.Errorf("at least one signature required")
	}
	numKeys := len(t.AccountKeys)
	if int(t.Header.NumRequiredSignatures) > numKeys {
		return fmt.Errorf("required signatures %d exceeds account key count %d", t.Header.NumRequiredSignatures, numKeys)
	}
	if int(t.Header.NumReadonlySigned)+int(t.Header.NumReadonlyUnsigned) > numKeys {
		return fmt.Errorf("readonly account counts exceed account key count %d", numKeys)
	}
	seen := make(map[Digest]struct{}, numKeys)
	for _, k := range t.AccountKeys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("duplicate account key %x", k)
		}
		seen[k] = struct{}{}
	}
	for i, ix := range t.Instructions {
		if int(ix.ProgramIDIndex) >= numKeys {
			return fmt.Errorf("instruction %d: program id index %d out of range [0,%d)", i, ix.ProgramIDIndex, numKeys)
		}
		for _, a := range ix.AccountIndexes {
			if int(a) >= numKeys {
				return fmt.Errorf("instruction %d: account index %d out of range [0,%d)", i, a, numKeys)
			}
		}
	}
	return nil
}

// MarshalCanonical returns the deterministic LE encoding of the transaction.
func (t Transaction) MarshalCanonical() []byte {
	e := newEncoder()
	e.u32(uint32(len(t.Signatures)))
	for _, s := range t.Signatures {
		e.raw(s[:])
	}
	e.u8(t.Header.NumRequiredSignatures)
	e.u8(t.Header.NumReadonlySigned)
	e.u8(t.Header.NumReadonlyUnsigned)
	e.u32(uint32(len(t.AccountKeys)))
	for _, k := range t.AccountKeys {
		e.raw(k[:])
	}
	e.raw(t.RecentBlockhash[:])
	e.u32(uint32(len(t.Instructions)))
	for _, ix := range t.Instructions {
		e.u8(ix.ProgramIDIndex)
		e.u32(uint32(len(ix.AccountIndexes)))
		e.raw(ix.AccountIndexes)
		e.bytesVec(ix.Data)
	}
	e.bool(t.Optimistic)
	return e.bytes()
}

// UnmarshalTransaction decodes a Transaction from its canonical encoding.
func UnmarshalTransaction(b []byte) (Transaction, error) {
	d := newDecoder(b)
	var t Transaction
	nsig, err := d.u32()
	if err != nil {
		return t, fmt.Errorf("signature count: %w", err)
	}
	t.Signatures = make([]Signature, nsig)
	for i := range t.Signatures {
		raw, err := d.raw(64)
		if err != nil {
			return t, fmt.Errorf("signature %d: %w", i, err)
		}
		copy(t.Signatures[i][:], raw)
	}
	if t.Header.NumRequiredSignatures, err = d.u8(); err != nil {
		return t, fmt.Errorf("header required sigs: %w", err)
	}
	if t.Header.NumReadonlySigned, err = d.u8(); err != nil {
		return t, fmt.Errorf("header readonly signed: %w", err)
	}
	if t.Header.NumReadonlyUnsigned, err = d.u8(); err != nil {
		return t, fmt.Errorf("header readonly unsigned: %w", err)
	}
	nkeys, err := d.u32()
	if err != nil {
		return t, fmt.Errorf("account key count: %w", err)
	}
	t.AccountKeys = make([]Digest, nkeys)
	for i := range t.AccountKeys {
		raw, err := d.raw(32)
		if err != nil {
			return t, fmt.Errorf("account key %d: %w", i, err)
		}
		copy(t.AccountKeys[i][:], raw)
	}
	blockhash, err := d.raw(32)
	if err != nil {
		return t, fmt.Errorf("recent blockhash: %w", err)
	}
	copy(t.RecentBlockhash[:], blockhash)
	nix, err := d.u32()
	if err != nil {
		return t, fmt.Errorf("instruction count: %w", err)
	}
	t.Instructions = make([]Instruction, nix)
	for i := range t.Instructions {
		ix := &t.Instructions[i]
		if ix.ProgramIDIndex, err = d.u8(); err != nil {
			return t, fmt.Errorf("instruction %d program id index: %w", i, err)
		}
		nacc, err := d.u32()
		if err != nil {
			return t, fmt.Errorf("instruction %d account count: %w", i, err)
		}
		if ix.AccountIndexes, err = d.raw(int(nacc)); err != nil {
			return t, fmt.Errorf("instruction %d account indexes: %w", i, err)
		}
		// d.raw returns a slice into the shared buffer; copy since callers
		// may outlive it.
		ix.AccountIndexes = append([]uint8(nil), ix.AccountIndexes...)
		if ix.Data, err = d.bytesVec(); err != nil {
			return t, fmt.Errorf("instruction %d data: %w", i, err)
		}
	}
	if t.Optimistic, err = d.boolean(); err != nil {
		return t, fmt.Errorf("optimistic flag: %w", err)
	}
	return t, nil
}

// LeafHash is the SHA-256 of the canonical encoding, used as a Merkle leaf.
func (t Transaction) LeafHash() Digest {
	return sha256.Sum256(t.MarshalCanonical())
}

// Block is the canonical per-height record (spec §3).
type Block struct {
	Number             uint64
	PreviousBlockID    Digest
	TransactionRoot    Digest
	AccountRoot        Digest
	Proof              []byte
	TransactionIDs     []Digest
	AccountAddresses   []Digest
}

// Key returns the StateStore key: SHA-256("block_" || ascii(number)).
func (b Block) Key() Digest {
	return sha256.Sum256([]byte(fmt.Sprintf("block_%d", b.Number)))
}

// MarshalCanonical returns the deterministic LE encoding of the block.
func (b Block) MarshalCanonical() []byte {
	e := newEncoder()
	e.u64(b.Number)
	e.raw(b.PreviousBlockID[:])
	e.raw(b.TransactionRoot[:])
	e.raw(b.AccountRoot[:])
	e.bytesVec(b.Proof)
	e.u32(uint32(len(b.TransactionIDs)))
	for _, id := range b.TransactionIDs {
		e.raw(id[:])
	}
	e.u32(uint32(len(b.AccountAddresses)))
	for _, a := range b.AccountAddresses {
		e.raw(a[:])
	}
	return e.bytes()
}

// UnmarshalBlock decodes a Block from its canonical encoding.
func UnmarshalBlock(buf []byte) (Block, error) {
	d := newDecoder(buf)
	var b Block
	var err error
	if b.Number, err = d.u64(); err != nil {
		return b, fmt.Errorf("block number: %w", err)
	}
	prev, err := d.raw(32)
	if err != nil {
		return b, fmt.Errorf("previous block id: %w", err)
	}
	copy(b.PreviousBlockID[:], prev)
	txRoot, err := d.raw(32)
	if err != nil {
		return b, fmt.Errorf("transaction root: %w", err)
	}
	copy(b.TransactionRoot[:], txRoot)
	acctRoot, err := d.raw(32)
	if err != nil {
		return b, fmt.Errorf("account root: %w", err)
	}
	copy(b.AccountRoot[:], acctRoot)
	if b.Proof, err = d.bytesVec(); err != nil {
		return b, fmt.Errorf("proof: %w", err)
	}
	ntx, err := d.u32()
	if err != nil {
		return b, fmt.Errorf("transaction id count: %w", err)
	}
	b.TransactionIDs = make([]Digest, ntx)
	for i := range b.TransactionIDs {
		raw, err := d.raw(32)
		if err != nil {
			return b, fmt.Errorf("transaction id %d: %w", i, err)
		}
		copy(b.TransactionIDs[i][:], raw)
	}
	nacct, err := d.u32()
	if err != nil {
		return b, fmt.Errorf("account address count: %w", err)
	}
	b.AccountAddresses = make([]Digest, nacct)
	for i := range b.AccountAddresses {
		raw, err := d.raw(32)
		if err != nil {
			return b, fmt.Errorf("account address %d: %w", i, err)
		}
		copy(b.AccountAddresses[i][:], raw)
	}
	return b, nil
}

// StateCommitmentPackage is the unit of work handed from the ExecutionEngine
// to the StateCommitment orchestrator (spec §3).
type StateCommitmentPackage struct {
	Optimistic      bool
	Proof           []byte
	PublicInputs    []byte
	VerifyingKey    []byte
	stateRoot       *Digest
	Accounts        []AccountState
	Transactions    []Transaction
	TransactionIDs  []Digest
}

// StateRoot returns the package's state root, or false if it hasn't been
// assigned yet.
func (p *StateCommitmentPackage) StateRoot() (Digest, bool) {
	if p.stateRoot == nil {
		return Digest{}, false
	}
	return *p.stateRoot, true
}

// SetStateRoot assigns the package's state root exactly once; per spec §3
// the root is immutable after assignment.
func (p *StateCommitmentPackage) SetStateRoot(root Digest) error {
	if p.stateRoot != nil {
		return fmt.Errorf("state root already assigned")
	}
	p.stateRoot = &root
	return nil
}

// Clone returns a copy suitable for handing to another owner (pools and the
// registry hold packages by value semantics, per spec §3 Ownership). The
// package's own slices and state root are copied; the byte slices inside
// each account and transaction are shared with the original.
func (p *StateCommitmentPackage) Clone() *StateCommitmentPackage {
	cp := *p
	if p.stateRoot != nil {
		root := *p.stateRoot
		cp.stateRoot = &root
	}
	cp.Proof = append([]byte(nil), p.Proof...)
	cp.PublicInputs = append([]byte(nil), p.PublicInputs...)
	cp.VerifyingKey = append([]byte(nil), p.VerifyingKey...)
	cp.Accounts = append([]AccountState(nil), p.Accounts...)
	cp.Transactions = append([]Transaction(nil), p.Transactions...)
	cp.TransactionIDs = append([]Digest(nil), p.TransactionIDs...)
	return &cp
}

// MarshalCanonical encodes the package for the optimistic StateStore's
// pending-registry persistence shadow (spec §4.5 step 2: "persist the
// package in the optimistic StateStore so the registry survives restarts").
func (p *StateCommitmentPackage) MarshalCanonical() []byte {
	e := newEncoder()
	e.bool(p.Optimistic)
	e.bytesVec(p.Proof)
	e.bytesVec(p.PublicInputs)
	e.bytesVec(p.VerifyingKey)
	hasRoot := p.stateRoot != nil
	e.bool(hasRoot)
	if hasRoot {
		e.raw(p.stateRoot[:])
	}
	e.u32(uint32(len(p.Accounts)))
	for _, a := range p.Accounts {
		e.bytesVec(a.MarshalCanonical())
	}
	e.u32(uint32(len(p.Transactions)))
	for _, tx := range p.Transactions {
		e.bytesVec(tx.MarshalCanonical())
	}
	e.u32(uint32(len(p.TransactionIDs)))
	for _, id := range p.TransactionIDs {
		e.raw(id[:])
	}
	return e.bytes()
}

// UnmarshalStateCommitmentPackage decodes a package from its canonical
// encoding.
func UnmarshalStateCommitmentPackage(b []byte) (*StateCommitmentPackage, error) {
	d := newDecoder(b)
	p := &StateCommitmentPackage{}
	var err error
	if p.Optimistic, err = d.boolean(); err != nil {
		return nil, fmt.Errorf("package optimistic flag: %w", err)
	}
	if p.Proof, err = d.bytesVec(); err != nil {
		return nil, fmt.Errorf("package proof: %w", err)
	}
	if p.PublicInputs, err = d.bytesVec(); err != nil {
		return nil, fmt.Errorf("package public inputs: %w", err)
	}
	if p.VerifyingKey, err = d.bytesVec(); err != nil {
		return nil, fmt.Errorf("package verifying key: %w", err)
	}
	hasRoot, err := d.boolean()
	if err != nil {
		return nil, fmt.Errorf("package state root flag: %w", err)
	}
	if hasRoot {
		raw, err := d.raw(32)
		if err != nil {
			return nil, fmt.Errorf("package state root: %w", err)
		}
		var root Digest
		copy(root[:], raw)
		p.stateRoot = &root
	}
	nacct, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("package account count: %w", err)
	}
	p.Accounts = make([]AccountState, nacct)
	for i := range p.Accounts {
		raw, err := d.bytesVec()
		if err != nil {
			return nil, fmt.Errorf("package account %d: %w", i, err)
		}
		if p.Accounts[i], err = UnmarshalAccountState(raw); err != nil {
			return nil, fmt.Errorf("package account %d: %w", i, err)
		}
	}
	ntx, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("package transaction count: %w", err)
	}
	p.Transactions = make([]Transaction, ntx)
	for i := range p.Transactions {
		raw, err := d.bytesVec()
		if err != nil {
			return nil, fmt.Errorf("package transaction %d: %w", i, err)
		}
		if p.Transactions[i], err = UnmarshalTransaction(raw); err != nil {
			return nil, fmt.Errorf("package transaction %d: %w", i, err)
		}
	}
	nids, err := d.u32()
	if err != nil {
		return nil, fmt.Errorf("package transaction id count: %w", err)
	}
	p.TransactionIDs = make([]Digest, nids)
	for i := range p.TransactionIDs {
		raw, err := d.raw(32)
		if err != nil {
			return nil, fmt.Errorf("package transaction id %d: %w", i, err)
		}
		copy(p.TransactionIDs[i][:], raw)
	}
	return p, nil
}
