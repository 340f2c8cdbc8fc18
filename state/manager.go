package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"deedchain/core/types"
	"deedchain/native/compliance"
	"deedchain/native/escrow"
	"deedchain/native/registry"
	"deedchain/storage"
)

const (
	prefixAccount    = "acct:"
	prefixProperty   = "prop:"
	prefixBid        = "bid:"
	prefixBidIndex   = "bidset:"
	prefixEscrowBal  = "escbal:"
	prefixCompliance = "comp:"
	prefixUnlock     = "unlock:"
	prefixDocs       = "docs:"
	prefixDeed       = "deed:"
	prefixMinter     = "minter:"
	keyDeedNextID    = "deed:nextid"
)

// Manager persists the escrow ledger over a key-value database. It implements
// the state interfaces consumed by the escrow, compliance and registry
// engines. All records are JSON encoded; the vault address is fixed at
// construction and holds every escrowed unit of value.
type Manager struct {
	mu    sync.Mutex
	db    storage.Database
	vault [20]byte
}

// NewManager wraps the database with the given vault address.
func NewManager(db storage.Database, vault [20]byte) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	if vault == ([20]byte{}) {
		return nil, fmt.Errorf("state: vault address required")
	}
	return &Manager{db: db, vault: vault}, nil
}

func (m *Manager) put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

// get decodes the value at key into out, reporting presence. Backend lookup
// errors are folded into absence: both MemDB and LevelDB signal missing keys
// through their error return.
func (m *Manager) get(key string, out interface{}) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// --- accounts ---

func accountKey(addr []byte) string { return prefixAccount + hex.EncodeToString(addr) }

// GetAccount returns the account at addr, or a fresh zero-balance account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := types.NewAccount()
	if _, err := m.get(accountKey(addr), acct); err != nil {
		return nil, err
	}
	if acct.Balance == nil {
		acct.Balance = big.NewInt(0)
	}
	return acct, nil
}

// PutAccount persists the account at addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.put(accountKey(addr), account)
}

// VaultAddress returns the custody address for escrowed value and deeds.
func (m *Manager) VaultAddress() ([20]byte, error) {
	return m.vault, nil
}

// --- properties ---

func propertyKey(id uint64) string { return prefixProperty + strconv.FormatUint(id, 10) }

// PropertyPut sanitizes and stores a sale record.
func (m *Manager) PropertyPut(p *escrow.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sanitized, err := escrow.SanitizeProperty(p)
	if err != nil {
		return err
	}
	return m.put(propertyKey(sanitized.ID), sanitized)
}

// PropertyGet loads a sale record.
func (m *Manager) PropertyGet(id uint64) (*escrow.Property, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prop := &escrow.Property{}
	ok, err := m.get(propertyKey(id), prop)
	if err != nil || !ok {
		return nil, false
	}
	return prop, true
}

// --- bids ---

func bidKey(id uint64, bidder [20]byte) string {
	return prefixBid + strconv.FormatUint(id, 10) + ":" + hex.EncodeToString(bidder[:])
}

func bidIndexKey(id uint64) string { return prefixBidIndex + strconv.FormatUint(id, 10) }

func (m *Manager) bidIndex(id uint64) ([]string, error) {
	var bidders []string
	if _, err := m.get(bidIndexKey(id), &bidders); err != nil {
		return nil, err
	}
	return bidders, nil
}

// BidPut stores a bid and maintains the per-property bidder index.
func (m *Manager) BidPut(b *escrow.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sanitized, err := escrow.SanitizeBid(b)
	if err != nil {
		return err
	}
	if err := m.put(bidKey(sanitized.PropertyID, sanitized.Bidder), sanitized); err != nil {
		return err
	}
	bidders, err := m.bidIndex(sanitized.PropertyID)
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(sanitized.Bidder[:])
	for _, existing := range bidders {
		if existing == encoded {
			return nil
		}
	}
	bidders = append(bidders, encoded)
	sort.Strings(bidders)
	return m.put(bidIndexKey(sanitized.PropertyID), bidders)
}

// BidGet loads the caller's active bid, if any.
func (m *Manager) BidGet(id uint64, bidder [20]byte) (*escrow.Bid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid := &escrow.Bid{}
	ok, err := m.get(bidKey(id, bidder), bid)
	if err != nil || !ok {
		return nil, false
	}
	return bid, true
}

// BidRemove deletes a bid and its index entry.
func (m *Manager) BidRemove(id uint64, bidder [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Delete([]byte(bidKey(id, bidder))); err != nil {
		return err
	}
	bidders, err := m.bidIndex(id)
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(bidder[:])
	filtered := bidders[:0]
	for _, existing := range bidders {
		if existing != encoded {
			filtered = append(filtered, existing)
		}
	}
	return m.put(bidIndexKey(id), filtered)
}

// BidList returns all active bids for a property.
func (m *Manager) BidList(id uint64) ([]*escrow.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bidders, err := m.bidIndex(id)
	if err != nil {
		return nil, err
	}
	bids := make([]*escrow.Bid, 0, len(bidders))
	for _, encoded := range bidders {
		raw, err := hex.DecodeString(encoded)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("state: corrupt bid index for property %d", id)
		}
		var bidder [20]byte
		copy(bidder[:], raw)
		bid := &escrow.Bid{}
		ok, err := m.get(bidKey(id, bidder), bid)
		if err != nil {
			return nil, err
		}
		if ok {
			bids = append(bids, bid)
		}
	}
	return bids, nil
}

// --- escrow sub-ledger ---

func escrowBalKey(id uint64) string { return prefixEscrowBal + strconv.FormatUint(id, 10) }

// EscrowBalance returns the vault value attributed to a property.
func (m *Manager) EscrowBalance(id uint64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrowBalanceLocked(id)
}

func (m *Manager) escrowBalanceLocked(id uint64) (*big.Int, error) {
	var encoded string
	ok, err := m.get(escrowBalKey(id), &encoded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	bal, valid := new(big.Int).SetString(encoded, 10)
	if !valid {
		return nil, fmt.Errorf("state: corrupt escrow balance for property %d", id)
	}
	return bal, nil
}

// EscrowCredit attributes vault value to a property.
func (m *Manager) EscrowCredit(id uint64, amt *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	bal, err := m.escrowBalanceLocked(id)
	if err != nil {
		return err
	}
	bal.Add(bal, amt)
	return m.put(escrowBalKey(id), bal.String())
}

// EscrowDebit releases vault value attributed to a property, rejecting
// overdrafts of the sub-ledger.
func (m *Manager) EscrowDebit(id uint64, amt *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	bal, err := m.escrowBalanceLocked(id)
	if err != nil {
		return err
	}
	if bal.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow sub-ledger overdraft for property %d", id)
	}
	bal.Sub(bal, amt)
	return m.put(escrowBalKey(id), bal.String())
}

// --- compliance ---

func complianceKey(addr [20]byte) string { return prefixCompliance + hex.EncodeToString(addr[:]) }

// ComplianceGet loads the compliance record for an account.
func (m *Manager) ComplianceGet(addr [20]byte) (*compliance.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &compliance.Record{}
	ok, err := m.get(complianceKey(addr), rec)
	if err != nil || !ok {
		return nil, false
	}
	return rec, true
}

// CompliancePut stores the compliance record for an account.
func (m *Manager) CompliancePut(addr [20]byte, rec *compliance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec == nil {
		return fmt.Errorf("state: nil compliance record")
	}
	return m.put(complianceKey(addr), rec)
}

func unlockKey(id uint64) string { return prefixUnlock + strconv.FormatUint(id, 10) }

// UnlockGet returns the lockup expiry for a property.
func (m *Manager) UnlockGet(id uint64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts int64
	ok, err := m.get(unlockKey(id), &ts)
	if err != nil || !ok {
		return 0, false
	}
	return ts, true
}

// UnlockPut stores the lockup expiry for a property.
func (m *Manager) UnlockPut(id uint64, unlockAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(unlockKey(id), unlockAt)
}

func docsKey(id uint64) string { return prefixDocs + strconv.FormatUint(id, 10) }

// DocPut appends a document record to the property's registry.
func (m *Manager) DocPut(doc *compliance.DocRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc == nil {
		return fmt.Errorf("state: nil document record")
	}
	var docs []*compliance.DocRecord
	if _, err := m.get(docsKey(doc.PropertyID), &docs); err != nil {
		return err
	}
	docs = append(docs, doc)
	return m.put(docsKey(doc.PropertyID), docs)
}

// DocList returns the registered documents for a property.
func (m *Manager) DocList(id uint64) ([]*compliance.DocRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []*compliance.DocRecord
	if _, err := m.get(docsKey(id), &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// --- deeds ---

func deedKey(id uint64) string { return prefixDeed + strconv.FormatUint(id, 10) }

// DeedPut sanitizes and stores a deed.
func (m *Manager) DeedPut(d *registry.Deed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sanitized, err := registry.SanitizeDeed(d)
	if err != nil {
		return err
	}
	return m.put(deedKey(sanitized.ID), sanitized)
}

// DeedGet loads a deed.
func (m *Manager) DeedGet(id uint64) (*registry.Deed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deed := &registry.Deed{}
	ok, err := m.get(deedKey(id), deed)
	if err != nil || !ok {
		return nil, false
	}
	return deed, true
}

// DeedNextID allocates the next sequential deed id, starting at 1.
func (m *Manager) DeedNextID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next uint64 = 1
	if _, err := m.get(keyDeedNextID, &next); err != nil {
		return 0, err
	}
	if err := m.put(keyDeedNextID, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func minterKey(addr [20]byte) string { return prefixMinter + hex.EncodeToString(addr[:]) }

// MinterGet reports whether an address holds mint rights.
func (m *Manager) MinterGet(addr [20]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var authorized bool
	ok, err := m.get(minterKey(addr), &authorized)
	return err == nil && ok && authorized
}

// MinterPut grants or revokes mint rights.
func (m *Manager) MinterPut(addr [20]byte, authorized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(minterKey(addr), authorized)
}
