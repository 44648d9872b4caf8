// Copyright 2025 Certen Protocol
//
// Validator set model. ValidatorUpdate actions are a tagged variant with
// exactly four cases: modeled as a discriminated sum plus a dispatch
// table rather than a class hierarchy, preferring flat structs over an
// interface hierarchy.

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/certen/sp-cdr-settlement/internal/primitives"
)

// ValidatorAction discriminates the four ValidatorUpdate cases.
type ValidatorAction uint8

const (
	ActionCreate ValidatorAction = iota
	ActionUpdate
	ActionRetire
	ActionReactivate
)

func (a ValidatorAction) String() string {
	switch a {
	case ActionCreate:
		return "Create"
	case ActionUpdate:
		return "Update"
	case ActionRetire:
		return "Retire"
	case ActionReactivate:
		return "Reactivate"
	default:
		return fmt.Sprintf("ValidatorAction(%d)", uint8(a))
	}
}

// ValidatorInfo is one validator's on-chain record.
type ValidatorInfo struct {
	Address       primitives.Hash
	SigningKey    [primitives.BLSPublicKeySize]byte // 48-byte BLS public key
	VotingKey     [32]byte                          // Ed25519 public key
	RewardAddress primitives.Hash
	Stake         uint64
	SignalData    []byte // optional
	InactiveFrom  *uint64
	JailedFrom    *uint64
}

// IsActive reports whether the validator currently participates in
// consensus: neither inactive nor jailed.
func (v ValidatorInfo) IsActive() bool {
	return v.InactiveFrom == nil && v.JailedFrom == nil
}

// CanonicalBytes is the deterministic encoding used when a ValidatorInfo is
// embedded in a macro block body or hashed for an election commitment.
func (v ValidatorInfo) CanonicalBytes() []byte {
	buf := append([]byte(nil), v.Address[:]...)
	buf = append(buf, v.SigningKey[:]...)
	buf = append(buf, v.VotingKey[:]...)
	buf = append(buf, v.RewardAddress[:]...)
	buf = primitives.AppendUint64(buf, v.Stake)
	buf = primitives.AppendBytesLP(buf, v.SignalData)
	buf = primitives.AppendUint64(buf, flagHeight(v.InactiveFrom))
	buf = primitives.AppendUint64(buf, flagHeight(v.JailedFrom))
	return buf
}

func flagHeight(h *uint64) uint64 {
	if h == nil {
		return 0
	}
	return *h + 1 // 0 is reserved for "unset"
}

// updateDispatch maps each ValidatorUpdate action to the function applying it to a ValidatorInfo,
// implementing the four-case dispatch table called out in the design notes.
var updateDispatch = map[ValidatorAction]func(v *ValidatorInfo, height uint64, stake uint64) error{
	ActionCreate: func(v *ValidatorInfo, height, stake uint64) error {
		v.Stake = stake
		v.InactiveFrom = nil
		v.JailedFrom = nil
		return nil
	},
	ActionUpdate: func(v *ValidatorInfo, height, stake uint64) error {
		v.Stake = stake
		return nil
	},
	ActionRetire: func(v *ValidatorInfo, height, stake uint64) error {
		h := height
		v.InactiveFrom = &h
		return nil
	},
	ActionReactivate: func(v *ValidatorInfo, height, stake uint64) error {
		if v.JailedFrom != nil {
			return errors.New("ledger: cannot reactivate a jailed validator")
		}
		v.InactiveFrom = nil
		return nil
	},
}

// ApplyValidatorUpdate mutates v in place per action, at the given block
// height, per the dispatch table above.
func ApplyValidatorUpdate(v *ValidatorInfo, action ValidatorAction, height, stake uint64) error {
	fn, ok := updateDispatch[action]
	if !ok {
		return fmt.Errorf("ledger: unknown validator action %v", action)
	}
	return fn(v, height, stake)
}

// ValidatorSet is the shared, epoch-scoped validator membership. Per the
// concurrency model, it is mutated by a single writer (the consensus task)
// and read concurrently by everyone else.
type ValidatorSet struct {
	mu         sync.RWMutex
	validators map[primitives.Hash]*ValidatorInfo
	order      []primitives.Hash // stable iteration order, insertion order
}

// NewValidatorSet constructs a set from an initial validator slice, as
// would be read from the genesis macro block.
func NewValidatorSet(initial []ValidatorInfo) *ValidatorSet {
	vs := &ValidatorSet{validators: make(map[primitives.Hash]*ValidatorInfo, len(initial))}
	for i := range initial {
		v := initial[i]
		vs.validators[v.Address] = &v
		vs.order = append(vs.order, v.Address)
	}
	return vs
}

// Get returns the validator at address, if present.
func (vs *ValidatorSet) Get(address primitives.Hash) (ValidatorInfo, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[address]
	if !ok {
		return ValidatorInfo{}, false
	}
	return *v, true
}

// TotalWeight sums the stake of all active validators.
func (vs *ValidatorSet) TotalWeight() uint64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	var total uint64
	for _, v := range vs.validators {
		if v.IsActive() {
			total += v.Stake
		}
	}
	return total
}

// HasQuorum reports whether weight meets the ⅔ BFT threshold of the
// current total active weight.
func (vs *ValidatorSet) HasQuorum(weight uint64) bool {
	total := vs.TotalWeight()
	if total == 0 {
		return false
	}
	return weight*3 >= total*2
}

// Apply applies a ValidatorUpdate to the member at address, creating it
// first if action is Create and the address is unknown.
func (vs *ValidatorSet) Apply(update ValidatorUpdatePayload, height uint64) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	v, ok := vs.validators[update.ValidatorAddress]
	if !ok {
		if update.Action != ActionCreate {
			return fmt.Errorf("ledger: validator %s not found for action %v", update.ValidatorAddress, update.Action)
		}
		v = &ValidatorInfo{Address: update.ValidatorAddress}
		vs.validators[update.ValidatorAddress] = v
		vs.order = append(vs.order, update.ValidatorAddress)
	}
	return ApplyValidatorUpdate(v, update.Action, height, update.Stake)
}

// Snapshot returns a stable-order copy of all validators, suitable for
// embedding in an election macro block body.
func (vs *ValidatorSet) Snapshot() []ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]ValidatorInfo, 0, len(vs.order))
	for _, addr := range vs.order {
		out = append(out, *vs.validators[addr])
	}
	return out
}
