package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"deedchain/core/events"
	"deedchain/core/types"
)

var (
	errNilState = errors.New("deed registry: state not configured")

	// ErrDeedNotFound is returned when no deed exists for the id.
	ErrDeedNotFound = errors.New("deed registry: deed not found")
	// ErrUnauthorized is returned for callers without mint or transfer
	// rights.
	ErrUnauthorized = errors.New("deed registry: unauthorized caller")
)

// engineState is the persistence surface for the deed registry.
type engineState interface {
	DeedPut(*Deed) error
	DeedGet(id uint64) (*Deed, bool)
	DeedNextID() (uint64, error)
	MinterGet(addr [20]byte) bool
	MinterPut(addr [20]byte, authorized bool) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine manages deed tokens: minting by authorized minters, per-token
// transfer approvals and ownership transfers. The escrow engine consumes it
// through an operator binding pinned to the vault address.
type Engine struct {
	state   engineState
	emitter events.Emitter
	admin   [20]byte
	nowFn   func() int64
}

// NewEngine creates a deed registry administered by the given address.
func NewEngine(admin [20]byte) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		admin:   admin,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadDeed(id uint64) (*Deed, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	deed, ok := e.state.DeedGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDeedNotFound, id)
	}
	return deed.Clone(), nil
}

// SetAuthorizedMinter grants or revokes mint rights.
func (e *Engine) SetAuthorizedMinter(caller, minter [20]byte, authorized bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return fmt.Errorf("%w: admin required", ErrUnauthorized)
	}
	return e.state.MinterPut(minter, authorized)
}

// Mint issues a new deed to the caller with the supplied metadata URI and
// returns the assigned id.
func (e *Engine) Mint(caller [20]byte, uri string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if caller != e.admin && !e.state.MinterGet(caller) {
		return 0, fmt.Errorf("%w: minter required", ErrUnauthorized)
	}
	if strings.TrimSpace(uri) == "" {
		return 0, fmt.Errorf("deed registry: metadata URI required")
	}
	id, err := e.state.DeedNextID()
	if err != nil {
		return 0, err
	}
	deed := &Deed{
		ID:       id,
		Owner:    caller,
		URI:      strings.TrimSpace(uri),
		MintedAt: e.now(),
	}
	if err := e.state.DeedPut(deed); err != nil {
		return 0, err
	}
	e.emit(NewDeedMintedEvent(deed))
	return id, nil
}

// OwnerOf returns the current owner of a deed.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Owner, nil
}

// TokenURI returns the metadata pointer for a deed.
func (e *Engine) TokenURI(id uint64) (string, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return "", err
	}
	return deed.URI, nil
}

// Approve entitles a single operator to transfer the deed on the owner's
// behalf. Only the owner may set it; a zero operator clears the approval.
func (e *Engine) Approve(caller, operator [20]byte, id uint64) error {
	deed, err := e.loadDeed(id)
	if err != nil {
		return err
	}
	if caller != deed.Owner {
		return fmt.Errorf("%w: owner required to approve", ErrUnauthorized)
	}
	deed.Approved = operator
	if err := e.state.DeedPut(deed); err != nil {
		return err
	}
	e.emit(NewDeedApprovedEvent(deed, operator))
	return nil
}

// GetApproved returns the operator approved for a deed, zero when none.
func (e *Engine) GetApproved(id uint64) ([20]byte, error) {
	deed, err := e.loadDeed(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Approved, nil
}

// TransferFrom moves ownership. The caller must be the current owner or the
// approved operator, and from must match the recorded owner. The approval
// clears on transfer.
func (e *Engine) TransferFrom(caller, from, to [20]byte, id uint64) error {
	deed, err := e.loadDeed(id)
	if err != nil {
		return err
	}
	if deed.Owner != from {
		return fmt.Errorf("%w: %x does not own deed %d", ErrUnauthorized, from, id)
	}
	if caller != deed.Owner && caller != deed.Approved {
		return fmt.Errorf("%w: transfer of deed %d", ErrUnauthorized, id)
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("deed registry: transfer to zero address")
	}
	deed.Owner = to
	deed.Approved = [20]byte{}
	if err := e.state.DeedPut(deed); err != nil {
		return err
	}
	e.emit(NewDeedTransferredEvent(id, from, to))
	return nil
}

// OperatorBinding adapts the registry to the escrow engine's collaborator
// interface, acting as a fixed operator address (the escrow vault).
type OperatorBinding struct {
	engine   *Engine
	operator [20]byte
}

// Bind returns a registry view that transfers as the given operator.
func (e *Engine) Bind(operator [20]byte) OperatorBinding {
	return OperatorBinding{engine: e, operator: operator}
}

func (b OperatorBinding) OwnerOf(id uint64) ([20]byte, error) { return b.engine.OwnerOf(id) }

func (b OperatorBinding) GetApproved(id uint64) ([20]byte, error) { return b.engine.GetApproved(id) }

func (b OperatorBinding) TransferFrom(from, to [20]byte, id uint64) error {
	return b.engine.TransferFrom(b.operator, from, to, id)
}
