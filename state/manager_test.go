package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deedchain/native/compliance"
	"deedchain/native/escrow"
	"deedchain/native/registry"
	"deedchain/storage"
)

func testVault() [20]byte {
	var vault [20]byte
	for i := range vault {
		vault[i] = 0xEE
	}
	return vault
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(storage.NewMemDB(), testVault())
	require.NoError(t, err)
	return m
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, testVault())
	require.Error(t, err)
	_, err = NewManager(storage.NewMemDB(), [20]byte{})
	require.Error(t, err)
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddress(0x10)

	acct, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, 0, acct.Balance.Sign())

	acct.Balance = big.NewInt(12_345)
	acct.Nonce = 7
	require.NoError(t, m.PutAccount(addr[:], acct))

	loaded, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(7), loaded.Nonce)
	require.Equal(t, "12345", loaded.Balance.String())
}

func TestPropertyRoundTrip(t *testing.T) {
	m := newTestManager(t)
	prop := &escrow.Property{
		ID:           1,
		Seller:       testAddress(0x02),
		Price:        big.NewInt(1_000),
		EscrowAmount: big.NewInt(100),
		PaidAmount:   big.NewInt(0),
		Status:       escrow.StatusListed,
		ListingType:  escrow.ListingAuction,
		ListedAt:     1_000_000,
	}
	require.NoError(t, m.PropertyPut(prop))

	loaded, ok := m.PropertyGet(1)
	require.True(t, ok)
	require.Equal(t, prop.Seller, loaded.Seller)
	require.Equal(t, escrow.StatusListed, loaded.Status)
	require.Equal(t, "1000", loaded.Price.String())

	_, ok = m.PropertyGet(2)
	require.False(t, ok)
}

func TestPropertyPutRejectsInvalid(t *testing.T) {
	m := newTestManager(t)
	prop := &escrow.Property{
		ID:           1,
		Price:        big.NewInt(100),
		EscrowAmount: big.NewInt(200),
	}
	require.Error(t, m.PropertyPut(prop))
}

func TestBidIndexMaintenance(t *testing.T) {
	m := newTestManager(t)
	a := testAddress(0x21)
	b := testAddress(0x22)
	for _, bidder := range [][20]byte{a, b} {
		require.NoError(t, m.BidPut(&escrow.Bid{
			PropertyID: 1,
			Bidder:     bidder,
			Amount:     big.NewInt(1_000),
			Collateral: big.NewInt(1_000),
		}))
	}

	bids, err := m.BidList(1)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	// Replacing a bid must not duplicate the index entry.
	require.NoError(t, m.BidPut(&escrow.Bid{
		PropertyID: 1,
		Bidder:     a,
		Amount:     big.NewInt(1_500),
		Collateral: big.NewInt(1_500),
	}))
	bids, err = m.BidList(1)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	bid, ok := m.BidGet(1, a)
	require.True(t, ok)
	require.Equal(t, "1500", bid.Amount.String())

	require.NoError(t, m.BidRemove(1, a))
	_, ok = m.BidGet(1, a)
	require.False(t, ok)
	bids, err = m.BidList(1)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, b, bids[0].Bidder)
}

func TestEscrowSubLedger(t *testing.T) {
	m := newTestManager(t)

	bal, err := m.EscrowBalance(1)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Sign())

	require.NoError(t, m.EscrowCredit(1, big.NewInt(500)))
	require.NoError(t, m.EscrowCredit(1, big.NewInt(250)))
	bal, err = m.EscrowBalance(1)
	require.NoError(t, err)
	require.Equal(t, "750", bal.String())

	require.Error(t, m.EscrowDebit(1, big.NewInt(1_000)), "overdraft must be rejected")
	require.NoError(t, m.EscrowDebit(1, big.NewInt(750)))
	bal, err = m.EscrowBalance(1)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Sign())

	require.Error(t, m.EscrowCredit(1, big.NewInt(-1)))
}

func TestComplianceAndUnlockRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddress(0x10)

	_, ok := m.ComplianceGet(addr)
	require.False(t, ok)

	rec := &compliance.Record{Allowlisted: true, UpdatedAt: 1_000_000}
	rec.CredentialHash = compliance.CredentialDigest([]byte("attestation"))
	require.NoError(t, m.CompliancePut(addr, rec))

	loaded, ok := m.ComplianceGet(addr)
	require.True(t, ok)
	require.True(t, loaded.Allowlisted)
	require.Equal(t, rec.CredentialHash, loaded.CredentialHash)

	require.NoError(t, m.UnlockPut(9, 2_000_000))
	ts, ok := m.UnlockGet(9)
	require.True(t, ok)
	require.Equal(t, int64(2_000_000), ts)
}

func TestDocRegistry(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.DocPut(&compliance.DocRecord{
		PropertyID:   3,
		Type:         compliance.DocTypeDeed,
		Hash:         compliance.DocDigest([]byte("deed")),
		RegisteredAt: 1_000_000,
	}))
	require.NoError(t, m.DocPut(&compliance.DocRecord{
		PropertyID:   3,
		Type:         compliance.DocTypeDisclosure,
		Hash:         compliance.DocDigest([]byte("disclosure")),
		RegisteredAt: 1_000_100,
	}))
	docs, err := m.DocList(3)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, compliance.DocTypeDeed, docs[0].Type)
}

func TestDeedStorage(t *testing.T) {
	m := newTestManager(t)

	id, err := m.DeedNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	id, err = m.DeedNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	deed := &registry.Deed{ID: 1, Owner: testAddress(0x02), URI: "ipfs://deed/1", MintedAt: 1_000_000}
	require.NoError(t, m.DeedPut(deed))
	loaded, ok := m.DeedGet(1)
	require.True(t, ok)
	require.Equal(t, deed.Owner, loaded.Owner)
	require.Equal(t, "ipfs://deed/1", loaded.URI)

	minter := testAddress(0x30)
	require.False(t, m.MinterGet(minter))
	require.NoError(t, m.MinterPut(minter, true))
	require.True(t, m.MinterGet(minter))
	require.NoError(t, m.MinterPut(minter, false))
	require.False(t, m.MinterGet(minter))
}

func TestVaultAddress(t *testing.T) {
	m := newTestManager(t)
	vault, err := m.VaultAddress()
	require.NoError(t, err)
	require.Equal(t, testVault(), vault)
}
