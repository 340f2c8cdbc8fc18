package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"deedchain/core/events"
	"deedchain/core/types"
	nativecommon "deedchain/native/common"
)

type mockState struct {
	properties map[uint64]*Property
	bids       map[uint64]map[[20]byte]*Bid
	balances   map[uint64]*big.Int
	accounts   map[[20]byte]*types.Account
	vault      [20]byte

	// failAccounts makes PutAccount fail for the flagged addresses,
	// simulating recipients that reject transfers.
	failAccounts map[[20]byte]bool
	// putAccountHook runs on every successful PutAccount, used to simulate
	// reentrant callbacks from value transfers.
	putAccountHook func(addr [20]byte)
}

func newMockState() *mockState {
	return &mockState{
		properties:   make(map[uint64]*Property),
		bids:         make(map[uint64]map[[20]byte]*Bid),
		balances:     make(map[uint64]*big.Int),
		accounts:     make(map[[20]byte]*types.Account),
		vault:        newTestAddress(0xEE),
		failAccounts: make(map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) PropertyPut(p *Property) error {
	sanitized, err := SanitizeProperty(p)
	if err != nil {
		return err
	}
	m.properties[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) PropertyGet(id uint64) (*Property, bool) {
	prop, ok := m.properties[id]
	if !ok {
		return nil, false
	}
	return prop.Clone(), true
}

func (m *mockState) BidPut(b *Bid) error {
	sanitized, err := SanitizeBid(b)
	if err != nil {
		return err
	}
	if m.bids[sanitized.PropertyID] == nil {
		m.bids[sanitized.PropertyID] = make(map[[20]byte]*Bid)
	}
	m.bids[sanitized.PropertyID][sanitized.Bidder] = sanitized.Clone()
	return nil
}

func (m *mockState) BidGet(id uint64, bidder [20]byte) (*Bid, bool) {
	bid, ok := m.bids[id][bidder]
	if !ok {
		return nil, false
	}
	return bid.Clone(), true
}

func (m *mockState) BidRemove(id uint64, bidder [20]byte) error {
	delete(m.bids[id], bidder)
	return nil
}

func (m *mockState) BidList(id uint64) ([]*Bid, error) {
	out := make([]*Bid, 0, len(m.bids[id]))
	for _, bid := range m.bids[id] {
		out = append(out, bid.Clone())
	}
	return out, nil
}

func (m *mockState) EscrowCredit(id uint64, amt *big.Int) error {
	bal := m.balances[id]
	if bal == nil {
		bal = big.NewInt(0)
	}
	m.balances[id] = new(big.Int).Add(bal, amt)
	return nil
}

func (m *mockState) EscrowDebit(id uint64, amt *big.Int) error {
	bal := m.balances[id]
	if bal == nil || bal.Cmp(amt) < 0 {
		return fmt.Errorf("escrow sub-ledger overdraft for property %d", id)
	}
	m.balances[id] = new(big.Int).Sub(bal, amt)
	return nil
}

func (m *mockState) EscrowBalance(id uint64) (*big.Int, error) {
	bal := m.balances[id]
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (m *mockState) VaultAddress() ([20]byte, error) { return m.vault, nil }

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return types.NewAccount(), nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	if m.failAccounts[key] {
		return fmt.Errorf("account %x rejects transfers", key)
	}
	m.accounts[key] = account.Clone()
	if m.putAccountHook != nil {
		m.putAccountHook(key)
	}
	return nil
}

func (m *mockState) setBalance(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balanceOf(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

type mockRegistry struct {
	owners   map[uint64][20]byte
	approved map[uint64][20]byte
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		owners:   make(map[uint64][20]byte),
		approved: make(map[uint64][20]byte),
	}
}

func (m *mockRegistry) OwnerOf(id uint64) ([20]byte, error) {
	owner, ok := m.owners[id]
	if !ok {
		return [20]byte{}, fmt.Errorf("deed %d not found", id)
	}
	return owner, nil
}

func (m *mockRegistry) GetApproved(id uint64) ([20]byte, error) {
	return m.approved[id], nil
}

func (m *mockRegistry) TransferFrom(from, to [20]byte, id uint64) error {
	owner, ok := m.owners[id]
	if !ok || owner != from {
		return fmt.Errorf("deed %d not owned by %x", id, from)
	}
	m.owners[id] = to
	delete(m.approved, id)
	return nil
}

type mockCompliance struct {
	allowed map[[20]byte]bool
	creds   map[[20]byte]bool
	unlocks map[uint64]int64
}

func newMockCompliance() *mockCompliance {
	return &mockCompliance{
		allowed: make(map[[20]byte]bool),
		creds:   make(map[[20]byte]bool),
		unlocks: make(map[uint64]int64),
	}
}

func (m *mockCompliance) IsAllowlisted(addr [20]byte) bool { return m.allowed[addr] }
func (m *mockCompliance) HasCredential(addr [20]byte) bool { return m.creds[addr] }
func (m *mockCompliance) UnlockAt(id uint64) int64         { return m.unlocks[id] }

func (m *mockCompliance) admit(addr [20]byte) {
	m.allowed[addr] = true
	m.creds[addr] = true
}

type capturingEmitter struct {
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	c.events = append(c.events, carrier.Event())
}

func (c *capturingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range c.events {
		if evt != nil && evt.Type == eventType {
			n++
		}
	}
	return n
}

func (c *capturingEmitter) last(eventType string) *types.Event {
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i] != nil && c.events[i].Type == eventType {
			return c.events[i]
		}
	}
	return nil
}

type testEnv struct {
	engine     *Engine
	state      *mockState
	registry   *mockRegistry
	compliance *mockCompliance
	emitter    *capturingEmitter
	clock      *int64

	owner        [20]byte
	seller       [20]byte
	inspector    [20]byte
	lender       [20]byte
	feeRecipient [20]byte
	buyer        [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:        newMockState(),
		registry:     newMockRegistry(),
		compliance:   newMockCompliance(),
		emitter:      &capturingEmitter{},
		owner:        newTestAddress(0x01),
		seller:       newTestAddress(0x02),
		inspector:    newTestAddress(0x03),
		lender:       newTestAddress(0x04),
		feeRecipient: newTestAddress(0x05),
		buyer:        newTestAddress(0x10),
	}
	clock := int64(1_000_000)
	env.clock = &clock
	env.engine = NewEngine(Parties{
		Owner:        env.owner,
		Seller:       env.seller,
		Inspector:    env.inspector,
		Lender:       env.lender,
		FeeRecipient: env.feeRecipient,
	})
	env.engine.SetState(env.state)
	env.engine.SetRegistry(env.registry)
	env.engine.SetCompliance(env.compliance)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return clock })
	env.compliance.admit(env.buyer)
	return env
}

func (env *testEnv) advance(seconds int64) { *env.clock += seconds }

// mintDeed seeds a deed owned by the seller with the vault approved, the
// precondition for listing.
func (env *testEnv) mintDeed(id uint64) {
	env.registry.owners[id] = env.seller
	env.registry.approved[id] = env.state.vault
}

func (env *testEnv) list(t *testing.T, id uint64, price, escrowAmount int64, listingType ListingType) *Property {
	t.Helper()
	env.mintDeed(id)
	prop, err := env.engine.List(env.seller, id, big.NewInt(price), big.NewInt(escrowAmount), listingType, nil)
	if err != nil {
		t.Fatalf("list property %d: %v", id, err)
	}
	return prop
}

func TestEngineRequiresWiring(t *testing.T) {
	engine := NewEngine(Parties{Owner: newTestAddress(0x01)})
	if _, err := engine.List(newTestAddress(0x02), 1, big.NewInt(100), big.NewInt(10), ListingFixedPrice, nil); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}

func TestSetPlatformFeeBounds(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetPlatformFee(env.owner, 1_000); err != nil {
		t.Fatalf("fee at cap should be accepted: %v", err)
	}
	if got := env.engine.PlatformFeeBps(); got != 1_000 {
		t.Fatalf("fee not applied: got %d", got)
	}
	if err := env.engine.SetPlatformFee(env.owner, 1_001); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("fee above cap should be rejected, got %v", err)
	}
	if err := env.engine.SetPlatformFee(env.seller, 100); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("non-owner fee change should be rejected, got %v", err)
	}
}

func TestSetFeeRecipientRejectsZero(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetFeeRecipient(env.owner, [20]byte{}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("zero fee recipient should be rejected, got %v", err)
	}
	next := newTestAddress(0x55)
	if err := env.engine.SetFeeRecipient(env.owner, next); err != nil {
		t.Fatalf("set fee recipient: %v", err)
	}
	if env.engine.Parties().FeeRecipient != next {
		t.Fatalf("fee recipient not updated")
	}
}

func TestPauseBlocksOperations(t *testing.T) {
	env := newTestEnv(t)
	env.list(t, 1, 1_000, 100, ListingFixedPrice)
	if err := env.engine.Pause(env.owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	env.state.setBalance(env.buyer, 1_000)
	err := env.engine.PurchaseDirectly(env.buyer, 1, big.NewInt(1_000))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := env.engine.Unpause(env.owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := env.engine.PurchaseDirectly(env.buyer, 1, big.NewInt(1_000)); err != nil {
		t.Fatalf("purchase after unpause: %v", err)
	}
}

func TestEmergencyWithdrawBypassesPause(t *testing.T) {
	env := newTestEnv(t)
	env.list(t, 1, 1_000, 100, ListingFixedPrice)
	env.state.setBalance(env.buyer, 1_000)
	if err := env.engine.PurchaseDirectly(env.buyer, 1, big.NewInt(1_000)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := env.engine.Pause(env.owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	recovery := newTestAddress(0x77)
	if err := env.engine.EmergencyWithdraw(env.owner, recovery, big.NewInt(400)); err != nil {
		t.Fatalf("emergency withdraw while paused: %v", err)
	}
	if got := env.state.balanceOf(recovery); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("recovery balance = %s, want 400", got)
	}
	if err := env.engine.EmergencyWithdraw(env.seller, recovery, big.NewInt(1)); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("non-owner emergency withdraw should fail, got %v", err)
	}
	if err := env.engine.EmergencyWithdraw(env.owner, recovery, big.NewInt(0)); !errors.Is(err, ErrIncorrectValue) {
		t.Fatalf("zero withdrawal should fail, got %v", err)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	env := newTestEnv(t)
	env.list(t, 1, 1_000, 100, ListingAuction)
	env.list(t, 2, 1_000, 100, ListingAuction)
	env.state.setBalance(env.buyer, 2_000)
	if err := env.engine.PlaceBid(env.buyer, 1, PaymentDirect, big.NewInt(1_000), big.NewInt(1_000)); err != nil {
		t.Fatalf("place bid on property 1: %v", err)
	}
	if err := env.engine.PlaceBid(env.buyer, 2, PaymentDirect, big.NewInt(1_000), big.NewInt(1_000)); err != nil {
		t.Fatalf("place bid on property 2: %v", err)
	}

	var reentrantErr error
	fired := false
	env.state.putAccountHook = func(addr [20]byte) {
		if fired || addr != env.buyer {
			return
		}
		fired = true
		// A transfer callback attempting another withdrawal must be
		// rejected while the outer one is in flight.
		reentrantErr = env.engine.WithdrawBid(env.buyer, 2)
	}
	if err := env.engine.WithdrawBid(env.buyer, 1); err != nil {
		t.Fatalf("withdraw bid: %v", err)
	}
	if !fired {
		t.Fatalf("reentrant hook never fired")
	}
	if !errors.Is(reentrantErr, ErrReentrantCall) {
		t.Fatalf("inner call error = %v, want ErrReentrantCall", reentrantErr)
	}
	if got := env.state.balanceOf(env.buyer); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("buyer balance = %s, want 1000 (property 2 collateral still held)", got)
	}
	if _, ok := env.state.BidGet(2, env.buyer); !ok {
		t.Fatalf("bid on property 2 should survive the rejected reentrant withdrawal")
	}
}

func TestFailedSendLeavesValueInVault(t *testing.T) {
	env := newTestEnv(t)
	env.list(t, 1, 1_000, 100, ListingFixedPrice)
	env.state.setBalance(env.buyer, 1_000)
	if err := env.engine.PurchaseDirectly(env.buyer, 1, big.NewInt(1_000)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	recovery := newTestAddress(0x77)
	env.state.failAccounts[recovery] = true
	if err := env.engine.EmergencyWithdraw(env.owner, recovery, big.NewInt(400)); err == nil {
		t.Fatalf("withdrawal to a rejecting account should fail")
	}
	// The rejected credit restores the vault rather than destroying value.
	if got := env.state.balanceOf(env.state.vault); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("vault balance = %s, want 1000 intact", got)
	}
	if got := env.state.balanceOf(recovery); got.Sign() != 0 {
		t.Fatalf("recovery balance = %s, want 0", got)
	}
}

func TestTransferValueRejectsOverdraft(t *testing.T) {
	env := newTestEnv(t)
	env.list(t, 1, 1_000, 100, ListingFixedPrice)
	env.state.setBalance(env.buyer, 999)
	err := env.engine.PurchaseDirectly(env.buyer, 1, big.NewInt(1_000))
	if err == nil {
		t.Fatalf("purchase with insufficient balance should fail")
	}
}
