package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"deedchain/native/common"
	"deedchain/native/compliance"
	"deedchain/native/escrow"
	"deedchain/native/registry"
	"deedchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

// Server exposes the escrow, compliance and deed-registry engines over JSON-RPC
// 2.0. Mutating methods require the configured bearer token; engine calls are
// serialized through a single mutex, matching the single-writer ledger model.
type Server struct {
	mu         sync.Mutex
	escrow     *escrow.Engine
	compliance *compliance.Engine
	registry   *registry.Engine
	authToken  string
}

// NewServer wires the three engines behind a JSON-RPC surface. An empty
// authToken disables every mutating method.
func NewServer(esc *escrow.Engine, comp *compliance.Engine, reg *registry.Engine, authToken string) *Server {
	return &Server{
		escrow:     esc,
		compliance: comp,
		registry:   reg,
		authToken:  strings.TrimSpace(authToken),
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps engine sentinel errors onto HTTP statuses and
// module-range JSON-RPC codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) int {
	status, code := http.StatusInternalServerError, codeEscrowInternal
	switch {
	case errors.Is(err, escrow.ErrPropertyNotFound),
		errors.Is(err, escrow.ErrBidNotFound),
		errors.Is(err, registry.ErrDeedNotFound):
		status, code = http.StatusNotFound, codeEscrowNotFound
	case errors.Is(err, escrow.ErrUnauthorizedCaller),
		errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, compliance.ErrUnauthorizedCaller),
		errors.Is(err, escrow.ErrTransferNotAllowed),
		errors.Is(err, escrow.ErrMissingCredential),
		errors.Is(err, escrow.ErrLockupActive),
		errors.Is(err, common.ErrModulePaused):
		status, code = http.StatusForbidden, codeEscrowForbidden
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrListingExpired),
		errors.Is(err, escrow.ErrInspectionPeriodExpired),
		errors.Is(err, escrow.ErrFinancingPeriodExpired),
		errors.Is(err, escrow.ErrReentrantCall):
		status, code = http.StatusConflict, codeEscrowConflict
	case errors.Is(err, escrow.ErrIncorrectValue),
		errors.Is(err, escrow.ErrInvalidConfiguration):
		status, code = http.StatusBadRequest, codeEscrowInvalidParams
	}
	writeError(w, status, id, code, err.Error(), nil)
	return status
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest) int

type route struct {
	module  string
	auth    bool
	handler handlerFunc
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"escrow_list":                {"escrow", true, s.handleEscrowList},
		"escrow_purchaseDirectly":    {"escrow", true, s.handleEscrowPurchaseDirectly},
		"escrow_purchaseWithDeposit": {"escrow", true, s.handleEscrowPurchaseWithDeposit},
		"escrow_depositEarnest":      {"escrow", true, s.handleEscrowDepositEarnest},
		"escrow_placeBid":            {"escrow", true, s.handleEscrowPlaceBid},
		"escrow_withdrawBid":         {"escrow", true, s.handleEscrowWithdrawBid},
		"escrow_acceptBid":           {"escrow", true, s.handleEscrowAcceptBid},
		"escrow_updateInspection":    {"escrow", true, s.handleEscrowUpdateInspection},
		"escrow_approveSale":         {"escrow", true, s.handleEscrowApproveSale},
		"escrow_fundByLender":        {"escrow", true, s.handleEscrowFundByLender},
		"escrow_finalizeSale":        {"escrow", true, s.handleEscrowFinalizeSale},
		"escrow_cancelSale":          {"escrow", true, s.handleEscrowCancelSale},
		"escrow_get":                 {"escrow", false, s.handleEscrowGet},
		"escrow_getBids":             {"escrow", false, s.handleEscrowGetBids},
		"escrow_highestBid":          {"escrow", false, s.handleEscrowHighestBid},
		"escrow_approvalStatus":      {"escrow", false, s.handleEscrowApprovalStatus},
		"escrow_propertyBalance":     {"escrow", false, s.handleEscrowPropertyBalance},
		"escrow_isListingExpired":    {"escrow", false, s.handleEscrowIsListingExpired},

		"compliance_setAllowlist":      {"compliance", true, s.handleComplianceSetAllowlist},
		"compliance_setCredentialHash": {"compliance", true, s.handleComplianceSetCredentialHash},
		"compliance_setUnlockAt":       {"compliance", true, s.handleComplianceSetUnlockAt},
		"compliance_registerDocHash":   {"compliance", true, s.handleComplianceRegisterDocHash},
		"compliance_get":               {"compliance", false, s.handleComplianceGet},
		"compliance_documents":         {"compliance", false, s.handleComplianceDocuments},

		"registry_mint":      {"registry", true, s.handleRegistryMint},
		"registry_approve":   {"registry", true, s.handleRegistryApprove},
		"registry_setMinter": {"registry", true, s.handleRegistrySetMinter},
		"registry_ownerOf":   {"registry", false, s.handleRegistryOwnerOf},
		"registry_tokenURI":  {"registry", false, s.handleRegistryTokenURI},

		"admin_setPlatformFee":    {"admin", true, s.handleAdminSetPlatformFee},
		"admin_setFeeRecipient":   {"admin", true, s.handleAdminSetFeeRecipient},
		"admin_setInspector":      {"admin", true, s.handleAdminSetInspector},
		"admin_setLender":         {"admin", true, s.handleAdminSetLender},
		"admin_pause":             {"admin", true, s.handleAdminPause},
		"admin_unpause":           {"admin", true, s.handleAdminUnpause},
		"admin_emergencyCancel":   {"admin", true, s.handleAdminEmergencyCancel},
		"admin_emergencyWithdraw": {"admin", true, s.handleAdminEmergencyWithdraw},
	}
}

// ServeHTTP decodes the JSON-RPC envelope and routes to the method handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	rt, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return
	}
	if rt.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			observability.ModuleMetrics().Observe(rt.module, req.Method, http.StatusUnauthorized, 0)
			return
		}
	}

	start := time.Now()
	s.mu.Lock()
	status := rt.handler(w, r, req)
	s.mu.Unlock()
	observability.ModuleMetrics().Observe(rt.module, req.Method, status, time.Since(start))
}

// --- shared param plumbing ---

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q", s)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes", s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	if len(raw) != 32 {
		return h, fmt.Errorf("invalid hash %q: want 32 bytes", s)
	}
	copy(h[:], raw)
	return h, nil
}

func parseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amt, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if amt.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amt, nil
}

func encodeAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return "0x" + hex.EncodeToString(addr[:])
}
