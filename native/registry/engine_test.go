package registry

import (
	"bytes"
	"errors"
	"testing"
)

type mockState struct {
	deeds   map[uint64]*Deed
	minters map[[20]byte]bool
	nextID  uint64
}

func newMockState() *mockState {
	return &mockState{
		deeds:   make(map[uint64]*Deed),
		minters: make(map[[20]byte]bool),
		nextID:  1,
	}
}

func (m *mockState) DeedPut(d *Deed) error {
	sanitized, err := SanitizeDeed(d)
	if err != nil {
		return err
	}
	m.deeds[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) DeedGet(id uint64) (*Deed, bool) {
	deed, ok := m.deeds[id]
	if !ok {
		return nil, false
	}
	return deed.Clone(), true
}

func (m *mockState) DeedNextID() (uint64, error) {
	id := m.nextID
	m.nextID++
	return id, nil
}

func (m *mockState) MinterGet(addr [20]byte) bool { return m.minters[addr] }

func (m *mockState) MinterPut(addr [20]byte, authorized bool) error {
	m.minters[addr] = authorized
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine() (*Engine, *mockState, [20]byte) {
	admin := newTestAddress(0x01)
	state := newMockState()
	engine := NewEngine(admin)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_000_000 })
	return engine, state, admin
}

func TestMintRequiresAuthorization(t *testing.T) {
	engine, _, admin := newTestEngine()
	stranger := newTestAddress(0x10)
	if _, err := engine.Mint(stranger, "ipfs://deed/1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized mint should fail, got %v", err)
	}
	if err := engine.SetAuthorizedMinter(stranger, stranger, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin grant should fail, got %v", err)
	}
	if err := engine.SetAuthorizedMinter(admin, stranger, true); err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	id, err := engine.Mint(stranger, "ipfs://deed/1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if id != 1 {
		t.Fatalf("first deed id = %d, want 1", id)
	}
}

func TestMintSequentialIDs(t *testing.T) {
	engine, _, admin := newTestEngine()
	for want := uint64(1); want <= 3; want++ {
		id, err := engine.Mint(admin, "ipfs://deed")
		if err != nil {
			t.Fatalf("mint %d: %v", want, err)
		}
		if id != want {
			t.Fatalf("deed id = %d, want %d", id, want)
		}
	}
}

func TestMintRejectsEmptyURI(t *testing.T) {
	engine, _, admin := newTestEngine()
	if _, err := engine.Mint(admin, "   "); err == nil {
		t.Fatalf("blank URI should be rejected")
	}
}

func TestApproveAndTransfer(t *testing.T) {
	engine, _, admin := newTestEngine()
	operator := newTestAddress(0x20)
	recipient := newTestAddress(0x30)
	id, err := engine.Mint(admin, "ipfs://deed/1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.Approve(operator, operator, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner approve should fail, got %v", err)
	}
	if err := engine.Approve(admin, operator, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, err := engine.GetApproved(id)
	if err != nil || approved != operator {
		t.Fatalf("approved = %x (%v), want operator", approved, err)
	}

	if err := engine.TransferFrom(operator, admin, recipient, id); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	owner, err := engine.OwnerOf(id)
	if err != nil || owner != recipient {
		t.Fatalf("owner = %x (%v), want recipient", owner, err)
	}
	// Approval clears on transfer.
	approved, err = engine.GetApproved(id)
	if err != nil || approved != ([20]byte{}) {
		t.Fatalf("approval should clear on transfer, got %x", approved)
	}
	if err := engine.TransferFrom(operator, recipient, admin, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale operator transfer should fail, got %v", err)
	}
}

func TestTransferFromValidatesOwner(t *testing.T) {
	engine, _, admin := newTestEngine()
	id, err := engine.Mint(admin, "ipfs://deed/1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := newTestAddress(0x40)
	if err := engine.TransferFrom(admin, other, admin, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong from address should fail, got %v", err)
	}
	if err := engine.TransferFrom(admin, admin, [20]byte{}, id); err == nil {
		t.Fatalf("transfer to zero address should fail")
	}
}

func TestOperatorBinding(t *testing.T) {
	engine, _, admin := newTestEngine()
	vault := newTestAddress(0xEE)
	id, err := engine.Mint(admin, "ipfs://deed/1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Approve(admin, vault, id); err != nil {
		t.Fatalf("approve vault: %v", err)
	}
	binding := engine.Bind(vault)
	if err := binding.TransferFrom(admin, vault, id); err != nil {
		t.Fatalf("binding transfer: %v", err)
	}
	owner, err := binding.OwnerOf(id)
	if err != nil || owner != vault {
		t.Fatalf("owner = %x (%v), want vault", owner, err)
	}
}

func TestOwnerOfUnknownDeed(t *testing.T) {
	engine, _, _ := newTestEngine()
	if _, err := engine.OwnerOf(99); !errors.Is(err, ErrDeedNotFound) {
		t.Fatalf("expected deed not found, got %v", err)
	}
}
