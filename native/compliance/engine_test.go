package compliance

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type mockState struct {
	records map[[20]byte]*Record
	unlocks map[uint64]int64
	docs    map[uint64][]*DocRecord
}

func newMockState() *mockState {
	return &mockState{
		records: make(map[[20]byte]*Record),
		unlocks: make(map[uint64]int64),
		docs:    make(map[uint64][]*DocRecord),
	}
}

func (m *mockState) ComplianceGet(addr [20]byte) (*Record, bool) {
	rec, ok := m.records[addr]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (m *mockState) CompliancePut(addr [20]byte, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	m.records[addr] = rec.Clone()
	return nil
}

func (m *mockState) UnlockGet(id uint64) (int64, bool) {
	ts, ok := m.unlocks[id]
	return ts, ok
}

func (m *mockState) UnlockPut(id uint64, unlockAt int64) error {
	m.unlocks[id] = unlockAt
	return nil
}

func (m *mockState) DocPut(doc *DocRecord) error {
	m.docs[doc.PropertyID] = append(m.docs[doc.PropertyID], doc.Clone())
	return nil
}

func (m *mockState) DocList(id uint64) ([]*DocRecord, error) {
	return m.docs[id], nil
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

func TestSetAllowlistRequiresAdmin(t *testing.T) {
	engine, _, _ := newTestEngine()
	subject := newTestAddress(0x10)
	if err := engine.SetAllowlist(subject, subject, true); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("non-admin write should fail, got %v", err)
	}
}

func TestAllowlistRoundTrip(t *testing.T) {
	engine, _, admin := newTestEngine()
	subject := newTestAddress(0x10)
	if engine.IsAllowlisted(subject) {
		t.Fatalf("fresh account should not be allowlisted")
	}
	if err := engine.SetAllowlist(admin, subject, true); err != nil {
		t.Fatalf("set allowlist: %v", err)
	}
	if !engine.IsAllowlisted(subject) {
		t.Fatalf("allowlist flag not visible")
	}
	if err := engine.SetAllowlist(admin, subject, false); err != nil {
		t.Fatalf("revoke allowlist: %v", err)
	}
	if engine.IsAllowlisted(subject) {
		t.Fatalf("revocation not visible")
	}
}

func TestCredentialHashLifecycle(t *testing.T) {
	engine, _, admin := newTestEngine()
	subject := newTestAddress(0x10)
	if engine.HasCredential(subject) {
		t.Fatalf("fresh account should have no credential")
	}
	hash := CredentialDigest([]byte("kyc-attestation-v1"))
	if err := engine.SetCredentialHash(admin, subject, hash); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	if !engine.HasCredential(subject) {
		t.Fatalf("credential not visible")
	}
	rec := engine.Record(subject)
	if rec.CredentialHash != hash {
		t.Fatalf("stored hash mismatch")
	}
	// A zero hash clears the credential.
	if err := engine.SetCredentialHash(admin, subject, [32]byte{}); err != nil {
		t.Fatalf("clear credential: %v", err)
	}
	if engine.HasCredential(subject) {
		t.Fatalf("cleared credential still visible")
	}
}

func TestUnlockAt(t *testing.T) {
	engine, _, admin := newTestEngine()
	if got := engine.UnlockAt(7); got != 0 {
		t.Fatalf("unset lockup should be zero, got %d", got)
	}
	if err := engine.SetUnlockAt(admin, 7, 2_000_000); err != nil {
		t.Fatalf("set unlock: %v", err)
	}
	if got := engine.UnlockAt(7); got != 2_000_000 {
		t.Fatalf("unlock = %d, want 2000000", got)
	}
	if err := engine.SetUnlockAt(admin, 7, -1); err == nil {
		t.Fatalf("negative unlock timestamp should be rejected")
	}
}

func TestRegisterDocHash(t *testing.T) {
	engine, _, admin := newTestEngine()
	digest := DocDigest([]byte("signed deed pdf"))
	doc, err := engine.RegisterDocHash(admin, 3, "Deed", digest)
	if err != nil {
		t.Fatalf("register doc: %v", err)
	}
	if doc.Type != DocTypeDeed {
		t.Fatalf("doc type = %s, want deed", doc.Type)
	}
	if _, err := engine.RegisterDocHash(admin, 3, "blueprint", digest); err == nil {
		t.Fatalf("unknown doc type should be rejected")
	}
	if _, err := engine.RegisterDocHash(admin, 3, "disclosure", [32]byte{}); err == nil {
		t.Fatalf("zero hash should be rejected")
	}
	docs, err := engine.Documents(3)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Hash != digest {
		t.Fatalf("document registry wrong: %+v", docs)
	}
}
