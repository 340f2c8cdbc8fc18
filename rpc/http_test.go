package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deedchain/native/compliance"
	"deedchain/native/escrow"
	"deedchain/native/registry"
	"deedchain/state"
	"deedchain/storage"
)

const testToken = "test-token"

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func hexAddr(fill byte) string {
	return encodeAddress(testAddr(fill))
}

// rpcEnvelope mirrors RPCResponse with a raw result so tests can decode the
// payload into typed structs.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type testServer struct {
	http *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	vault := testAddr(0xEE)
	manager, err := state.NewManager(storage.NewMemDB(), vault)
	if err != nil {
		t.Fatalf("state manager: %v", err)
	}
	owner := testAddr(0x01)
	parties := escrow.Parties{
		Owner:        owner,
		Seller:       owner,
		Inspector:    testAddr(0x03),
		Lender:       testAddr(0x04),
		FeeRecipient: testAddr(0x05),
	}
	regEngine := registry.NewEngine(owner)
	regEngine.SetState(manager)
	compEngine := compliance.NewEngine(owner)
	compEngine.SetState(manager)
	escEngine := escrow.NewEngine(parties)
	escEngine.SetState(manager)
	escEngine.SetRegistry(regEngine.Bind(vault))
	escEngine.SetCompliance(compEngine)

	srv := NewServer(escEngine, compEngine, regEngine, testToken)
	ts := &testServer{http: httptest.NewServer(srv)}
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) call(t *testing.T, token, method string, params interface{}) (*http.Response, rpcEnvelope) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.http.URL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.http.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestUnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	resp, decoded := ts.call(t, "", "escrow_doesNotExist", map[string]interface{}{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if decoded.Error == nil || decoded.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", decoded.Error)
	}
}

func TestInvalidJSONPayload(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.http.Client().Post(ts.http.URL, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var decoded rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeParseError {
		t.Fatalf("error = %+v, want parse error", decoded.Error)
	}
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]interface{}{"caller": hexAddr(0x01), "uri": "ipfs://deed/1"}

	resp, decoded := ts.call(t, "", "registry_mint", params)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if decoded.Error == nil || decoded.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want unauthorized", decoded.Error)
	}

	resp, decoded = ts.call(t, "wrong-token", "registry_mint", params)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}

	resp, decoded = ts.call(t, testToken, "registry_mint", params)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200 (error %+v)", resp.StatusCode, decoded.Error)
	}
	if decoded.Error != nil {
		t.Fatalf("mint failed: %+v", decoded.Error)
	}
}

func TestListAndGetFlow(t *testing.T) {
	ts := newTestServer(t)
	owner := hexAddr(0x01)
	vault := hexAddr(0xEE)

	_, decoded := ts.call(t, testToken, "registry_mint", map[string]interface{}{
		"caller": owner, "uri": "ipfs://deed/1",
	})
	if decoded.Error != nil {
		t.Fatalf("mint: %+v", decoded.Error)
	}
	var minted struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(decoded.Result, &minted); err != nil {
		t.Fatalf("decode mint result: %v", err)
	}

	_, decoded = ts.call(t, testToken, "registry_approve", map[string]interface{}{
		"caller": owner, "operator": vault, "id": minted.ID,
	})
	if decoded.Error != nil {
		t.Fatalf("approve: %+v", decoded.Error)
	}

	_, decoded = ts.call(t, testToken, "escrow_list", map[string]interface{}{
		"caller": owner, "id": minted.ID, "price": "1000", "escrowAmount": "100",
	})
	if decoded.Error != nil {
		t.Fatalf("list: %+v", decoded.Error)
	}

	_, decoded = ts.call(t, "", "escrow_get", map[string]interface{}{"id": minted.ID})
	if decoded.Error != nil {
		t.Fatalf("get: %+v", decoded.Error)
	}
	var prop propertyResult
	if err := json.Unmarshal(decoded.Result, &prop); err != nil {
		t.Fatalf("decode property: %v", err)
	}
	if prop.Status != "listed" || prop.Price != "1000" {
		t.Fatalf("property = %+v, want listed at 1000", prop)
	}

	_, decoded = ts.call(t, "", "registry_ownerOf", map[string]interface{}{"id": minted.ID})
	if decoded.Error != nil {
		t.Fatalf("ownerOf: %+v", decoded.Error)
	}
	var ownerResult struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(decoded.Result, &ownerResult); err != nil {
		t.Fatalf("decode owner: %v", err)
	}
	if ownerResult.Owner != vault {
		t.Fatalf("deed owner = %s, want vault custody", ownerResult.Owner)
	}
}

func TestEngineErrorsMapToStatuses(t *testing.T) {
	ts := newTestServer(t)

	// Unknown property: 404 and the module not-found code.
	resp, decoded := ts.call(t, "", "escrow_get", map[string]interface{}{"id": 99})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if decoded.Error == nil || decoded.Error.Code != codeEscrowNotFound {
		t.Fatalf("error = %+v, want escrow not found", decoded.Error)
	}

	// Fee above cap: 400 and the module invalid-params code.
	resp, decoded = ts.call(t, testToken, "admin_setPlatformFee", map[string]interface{}{
		"caller": hexAddr(0x01), "bps": 1001,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if decoded.Error == nil || decoded.Error.Code != codeEscrowInvalidParams {
		t.Fatalf("error = %+v, want invalid params", decoded.Error)
	}

	// Non-owner admin call: 403 and the module forbidden code.
	resp, decoded = ts.call(t, testToken, "admin_pause", map[string]interface{}{
		"caller": hexAddr(0x44),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if decoded.Error == nil || decoded.Error.Code != codeEscrowForbidden {
		t.Fatalf("error = %+v, want forbidden", decoded.Error)
	}
}

func TestResultDecoding(t *testing.T) {
	ts := newTestServer(t)
	_, decoded := ts.call(t, testToken, "compliance_setAllowlist", map[string]interface{}{
		"caller": hexAddr(0x01), "address": hexAddr(0x10), "allowed": true,
	})
	if decoded.Error != nil {
		t.Fatalf("set allowlist: %+v", decoded.Error)
	}
	_, decoded = ts.call(t, "", "compliance_get", map[string]interface{}{"address": hexAddr(0x10)})
	if decoded.Error != nil {
		t.Fatalf("compliance get: %+v", decoded.Error)
	}
	var rec struct {
		Allowlisted bool `json:"allowlisted"`
	}
	if err := json.Unmarshal(decoded.Result, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !rec.Allowlisted {
		t.Fatalf("allowlist flag not visible over RPC")
	}
}
