package compliance

import (
	"errors"
	"fmt"
	"time"

	"deedchain/core/events"
	"deedchain/core/types"
)

var (
	errNilState = errors.New("compliance engine: state not configured")

	// ErrUnauthorizedCaller is returned when a non-admin attempts a write.
	ErrUnauthorizedCaller = errors.New("compliance: unauthorized caller")
)

// engineState is the persistence surface for compliance facts.
type engineState interface {
	ComplianceGet(addr [20]byte) (*Record, bool)
	CompliancePut(addr [20]byte, rec *Record) error
	UnlockGet(propertyID uint64) (int64, bool)
	UnlockPut(propertyID uint64, unlockAt int64) error
	DocPut(doc *DocRecord) error
	DocList(propertyID uint64) ([]*DocRecord, error)
}

type complianceEvent struct {
	evt *types.Event
}

func (e complianceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e complianceEvent) Event() *types.Event { return e.evt }

// Engine is the compliance oracle: allowlist flags, credential commitments and
// per-property unlock timestamps, written by the compliance authority and read
// by the escrow engine before settlement.
type Engine struct {
	state   engineState
	emitter events.Emitter
	admin   [20]byte
	nowFn   func() int64
}

// NewEngine creates a compliance engine administered by the given address.
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
	e.emitter.Emit(complianceEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if caller != e.admin {
		return fmt.Errorf("%w: compliance admin required", ErrUnauthorizedCaller)
	}
	return nil
}

func (e *Engine) load(addr [20]byte) *Record {
	if rec, ok := e.state.ComplianceGet(addr); ok {
		return rec.Clone()
	}
	return &Record{}
}

// SetAllowlist flips the per-account allowlist flag.
func (e *Engine) SetAllowlist(caller, addr [20]byte, allowed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	rec := e.load(addr)
	rec.Allowlisted = allowed
	rec.UpdatedAt = e.now()
	if err := e.state.CompliancePut(addr, rec); err != nil {
		return err
	}
	e.emit(NewAllowlistUpdatedEvent(addr, allowed))
	return nil
}

// SetCredentialHash stores the credential commitment for an account. A zero
// hash clears the credential.
func (e *Engine) SetCredentialHash(caller, addr [20]byte, hash [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	rec := e.load(addr)
	rec.CredentialHash = hash
	rec.UpdatedAt = e.now()
	if err := e.state.CompliancePut(addr, rec); err != nil {
		return err
	}
	e.emit(NewCredentialHashSetEvent(addr, hash))
	return nil
}

// SetUnlockAt stores the per-property lockup expiry. Zero clears the lockup.
func (e *Engine) SetUnlockAt(caller [20]byte, propertyID uint64, unlockAt int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if unlockAt < 0 {
		return fmt.Errorf("compliance: unlock timestamp must be non-negative")
	}
	if err := e.state.UnlockPut(propertyID, unlockAt); err != nil {
		return err
	}
	e.emit(NewUnlockSetEvent(propertyID, unlockAt))
	return nil
}

// RegisterDocHash records a document digest for a property. Purely a
// record-keeping side channel.
func (e *Engine) RegisterDocHash(caller [20]byte, propertyID uint64, docType string, hash [32]byte) (*DocRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	normalized, err := NormalizeDocType(docType)
	if err != nil {
		return nil, err
	}
	if hash == ([32]byte{}) {
		return nil, fmt.Errorf("compliance: zero document hash")
	}
	doc := &DocRecord{
		PropertyID:   propertyID,
		Type:         normalized,
		Hash:         hash,
		RegisteredAt: e.now(),
	}
	if err := e.state.DocPut(doc); err != nil {
		return nil, err
	}
	e.emit(NewDocRegisteredEvent(doc))
	return doc.Clone(), nil
}

// Documents lists the registered document digests for a property.
func (e *Engine) Documents(propertyID uint64) ([]*DocRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	docs, err := e.state.DocList(propertyID)
	if err != nil {
		return nil, err
	}
	out := make([]*DocRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Clone())
	}
	return out, nil
}

// Record returns the compliance facts for an account.
func (e *Engine) Record(addr [20]byte) *Record {
	if e == nil || e.state == nil {
		return &Record{}
	}
	return e.load(addr)
}

// --- escrow.ComplianceView ---

// IsAllowlisted reports the allowlist flag for an account.
func (e *Engine) IsAllowlisted(addr [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	rec, ok := e.state.ComplianceGet(addr)
	return ok && rec.Allowlisted
}

// HasCredential reports whether a credential hash is on file.
func (e *Engine) HasCredential(addr [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	rec, ok := e.state.ComplianceGet(addr)
	return ok && rec.HasCredential()
}

// UnlockAt returns the lockup expiry for a property, zero when none is set.
func (e *Engine) UnlockAt(propertyID uint64) int64 {
	if e == nil || e.state == nil {
		return 0
	}
	ts, ok := e.state.UnlockGet(propertyID)
	if !ok {
		return 0
	}
	return ts
}
