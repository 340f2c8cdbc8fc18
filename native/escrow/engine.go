package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"deedchain/core/events"
	"deedchain/core/types"
	nativecommon "deedchain/native/common"
)

var (
	errNilState      = errors.New("escrow engine: state not configured")
	errNilRegistry   = errors.New("escrow engine: deed registry not configured")
	errNilCompliance = errors.New("escrow engine: compliance oracle not configured")
)

const moduleName = "propertyescrow"

const maxPlatformFeeBps uint32 = 1_000

// DefaultPlatformFeeBps is the fee applied when the engine is constructed
// without an explicit override (2.5%).
const DefaultPlatformFeeBps uint32 = 250

// engineState is the narrow persistence surface the engine requires. The
// vault address holds all escrowed value; per-property entitlements are
// tracked through the credit/debit sub-ledger.
type engineState interface {
	PropertyPut(*Property) error
	PropertyGet(id uint64) (*Property, bool)
	BidPut(*Bid) error
	BidGet(id uint64, bidder [20]byte) (*Bid, bool)
	BidRemove(id uint64, bidder [20]byte) error
	BidList(id uint64) ([]*Bid, error)
	EscrowCredit(id uint64, amt *big.Int) error
	EscrowDebit(id uint64, amt *big.Int) error
	EscrowBalance(id uint64) (*big.Int, error)
	VaultAddress() ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// DeedRegistry is the asset-registry surface the engine consumes. Custody of
// the deed token moves to the vault address at listing time and leaves it at
// finalize or cancellation.
type DeedRegistry interface {
	OwnerOf(id uint64) ([20]byte, error)
	GetApproved(id uint64) ([20]byte, error)
	TransferFrom(from, to [20]byte, id uint64) error
}

// ComplianceView is the read-only oracle consulted before buyer selection and
// authoritatively at finalize. Writes happen out-of-band.
type ComplianceView interface {
	IsAllowlisted(addr [20]byte) bool
	HasCredential(addr [20]byte) bool
	UnlockAt(propertyID uint64) int64
}

// Parties fixes the engine-level roles. The seller is the default listing
// authority; the owner holds the administrative surface.
type Parties struct {
	Owner        [20]byte
	Seller       [20]byte
	Inspector    [20]byte
	Lender       [20]byte
	FeeRecipient [20]byte
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine drives the property sale state machine: listings, bids, purchases,
// inspection gating, approvals, lender financing and final settlement. All
// operations are serialized by the caller; the internal busy flag rejects
// reentrant invocations triggered from value-transfer callbacks.
type Engine struct {
	state      engineState
	registry   DeedRegistry
	compliance ComplianceView
	emitter    events.Emitter
	nowFn      func() int64
	pauses     nativecommon.PauseView

	parties        Parties
	platformFeeBps uint32
	paused         bool

	guardMu sync.Mutex
	busy    bool
}

// NewEngine creates an escrow engine with a no-op emitter and the default
// platform fee. Callers wire state, registry and compliance before use.
func NewEngine(parties Parties) *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		parties:        parties,
		platformFeeBps: DefaultPlatformFeeBps,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the deed registry collaborator.
func (e *Engine) SetRegistry(reg DeedRegistry) { e.registry = reg }

// SetCompliance configures the compliance oracle consulted before transfers.
func (e *Engine) SetCompliance(view ComplianceView) { e.compliance = view }

// SetPauses wires an external pause view consulted ahead of the engine's own
// circuit breaker.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Parties returns the configured engine roles.
func (e *Engine) Parties() Parties { return e.parties }

// PlatformFeeBps returns the fee retained at finalize, in basis points.
func (e *Engine) PlatformFeeBps() uint32 { return e.platformFeeBps }

// Paused reports whether the engine circuit breaker is engaged.
func (e *Engine) Paused() bool { return e.paused }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter flips the reentrancy flag for operations that move value. A second
// invocation arriving before the outer call completes is rejected outright.
func (e *Engine) enter() error {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if e.busy {
		return ErrReentrantCall
	}
	e.busy = true
	return nil
}

func (e *Engine) exit() {
	e.guardMu.Lock()
	e.busy = false
	e.guardMu.Unlock()
}

// guardPaused enforces the external pause view and the engine's own breaker.
// Admin emergency operations bypass it.
func (e *Engine) guardPaused() error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.paused {
		return nativecommon.ErrModulePaused
	}
	return nil
}

func (e *Engine) requireWired() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.compliance == nil {
		return errNilCompliance
	}
	return nil
}

func (e *Engine) isPrivileged(caller [20]byte) bool {
	p := e.parties
	return caller == p.Owner || caller == p.Seller || caller == p.Inspector || caller == p.Lender
}

// checkCompliance applies the allowlist, credential and lockup gates in that
// order. Privileged engine roles bypass the early check; finalize never does.
func (e *Engine) checkCompliance(addr [20]byte, propertyID uint64) error {
	if !e.compliance.IsAllowlisted(addr) {
		return fmt.Errorf("%w: %x not allowlisted", ErrTransferNotAllowed, addr)
	}
	if !e.compliance.HasCredential(addr) {
		return fmt.Errorf("%w: no credential for %x", ErrMissingCredential, addr)
	}
	if unlockAt := e.compliance.UnlockAt(propertyID); unlockAt > 0 && e.now() < unlockAt {
		return fmt.Errorf("%w: property %d locked until %d", ErrLockupActive, propertyID, unlockAt)
	}
	return nil
}

func (e *Engine) loadProperty(id uint64) (*Property, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	prop, ok := e.state.PropertyGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	return SanitizeProperty(prop)
}

func (e *Engine) storeProperty(prop *Property) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.PropertyPut(prop)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// transferValue moves value between two ledger accounts, rejecting overdrafts.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		// A rejected credit must not destroy value: restore the sender so
		// the funds stay where they were.
		fromAcc.Balance = new(big.Int).Add(fromAcc.Balance, amt)
		if restoreErr := e.state.PutAccount(from[:], fromAcc); restoreErr != nil {
			return fmt.Errorf("escrow: transfer failed (%v) and sender restore failed: %w", err, restoreErr)
		}
		return err
	}
	return nil
}

// collect pulls exactly amount from the payer into the vault and credits the
// property sub-ledger.
func (e *Engine) collect(propertyID uint64, from [20]byte, amount *big.Int) error {
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.transferValue(from, vault, amount); err != nil {
		return err
	}
	return e.state.EscrowCredit(propertyID, amount)
}

// payOut debits the property sub-ledger and sends value from the vault to the
// recipient. The debit happens before the send so a reentrant callback
// observes an already-zeroed entitlement. A failed send restores the debit:
// the value stays in the vault, attributed to the property.
func (e *Engine) payOut(propertyID uint64, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.state.EscrowDebit(propertyID, amount); err != nil {
		return err
	}
	if err := e.transferValue(vault, to, amount); err != nil {
		if restoreErr := e.state.EscrowCredit(propertyID, amount); restoreErr != nil {
			return fmt.Errorf("escrow: payout failed (%v) and sub-ledger restore failed: %w", err, restoreErr)
		}
		return err
	}
	return nil
}

func (e *Engine) setStatus(prop *Property, to PropertyStatus) {
	from := prop.Status
	if from == to {
		return
	}
	prop.Status = to
	e.emit(NewStatusChangedEvent(prop.ID, from, to))
}

// --- Administrative surface ---

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.parties.Owner {
		return fmt.Errorf("%w: owner required", ErrUnauthorizedCaller)
	}
	return nil
}

// SetPlatformFee updates the basis-point fee retained at finalize. Fees above
// 10% are rejected.
func (e *Engine) SetPlatformFee(caller [20]byte, bps uint32) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if bps > maxPlatformFeeBps {
		return fmt.Errorf("%w: fee %d bps above maximum %d", ErrInvalidConfiguration, bps, maxPlatformFeeBps)
	}
	e.platformFeeBps = bps
	e.emit(NewFeeUpdatedEvent(bps))
	return nil
}

// SetFeeRecipient updates the address receiving the platform fee.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return fmt.Errorf("%w: zero fee recipient", ErrInvalidConfiguration)
	}
	e.parties.FeeRecipient = recipient
	e.emit(NewFeeRecipientSetEvent(recipient))
	return nil
}

// SetInspector reassigns the inspector role.
func (e *Engine) SetInspector(caller, inspector [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if inspector == ([20]byte{}) {
		return fmt.Errorf("%w: zero inspector", ErrInvalidConfiguration)
	}
	e.parties.Inspector = inspector
	return nil
}

// SetLender reassigns the lender role.
func (e *Engine) SetLender(caller, lender [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if lender == ([20]byte{}) {
		return fmt.Errorf("%w: zero lender", ErrInvalidConfiguration)
	}
	e.parties.Lender = lender
	return nil
}

// Pause engages the coarse circuit breaker blocking every non-admin
// operation.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !e.paused {
		e.paused = true
		e.emit(NewPausedEvent())
	}
	return nil
}

// Unpause releases the circuit breaker.
func (e *Engine) Unpause(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if e.paused {
		e.paused = false
		e.emit(NewUnpausedEvent())
	}
	return nil
}

// EmergencyWithdraw sweeps vault balance to an explicit recipient. It bypasses
// the pause guard and the per-property sub-ledger: its purpose is recovering
// funds stranded by failed refunds.
func (e *Engine) EmergencyWithdraw(caller, recipient [20]byte, amount *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrIncorrectValue)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.transferValue(vault, recipient, amount); err != nil {
		return err
	}
	e.emit(NewEmergencyWithdrawEvent(recipient, amount.String()))
	return nil
}
