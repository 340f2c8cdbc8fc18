package rpc

import (
	"encoding/hex"
	"net/http"
)

type complianceAllowlistParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Allowed bool   `json:"allowed"`
}

func (s *Server) handleComplianceSetAllowlist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params complianceAllowlistParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.compliance.SetAllowlist(caller, addr, params.Allowed); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type complianceCredentialParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Hash    string `json:"hash"`
}

func (s *Server) handleComplianceSetCredentialHash(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params complianceCredentialParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	// A zero hash clears the credential.
	var hash [32]byte
	if params.Hash != "" {
		hash, err = parseHash(params.Hash)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
			return http.StatusBadRequest
		}
	}
	if err := s.compliance.SetCredentialHash(caller, addr, hash); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type complianceUnlockParams struct {
	Caller   string `json:"caller"`
	ID       uint64 `json:"id"`
	UnlockAt int64  `json:"unlockAt"`
}

func (s *Server) handleComplianceSetUnlockAt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params complianceUnlockParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.compliance.SetUnlockAt(caller, params.ID, params.UnlockAt); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type complianceDocParams struct {
	Caller  string `json:"caller"`
	ID      uint64 `json:"id"`
	DocType string `json:"docType"`
	Hash    string `json:"hash"`
}

type docResult struct {
	PropertyID   uint64 `json:"propertyId"`
	DocType      string `json:"docType"`
	Hash         string `json:"hash"`
	RegisteredAt int64  `json:"registeredAt"`
}

func (s *Server) handleComplianceRegisterDocHash(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params complianceDocParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	hash, err := parseHash(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	doc, err := s.compliance.RegisterDocHash(caller, params.ID, params.DocType, hash)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, docResult{
		PropertyID:   doc.PropertyID,
		DocType:      string(doc.Type),
		Hash:         "0x" + hex.EncodeToString(doc.Hash[:]),
		RegisteredAt: doc.RegisteredAt,
	})
	return http.StatusOK
}

type complianceAddressParams struct {
	Address string `json:"address"`
}

func (s *Server) handleComplianceGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params complianceAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	rec := s.compliance.Record(addr)
	writeResult(w, req.ID, map[string]interface{}{
		"address":        encodeAddress(addr),
		"allowlisted":    rec.Allowlisted,
		"credentialHash": "0x" + hex.EncodeToString(rec.CredentialHash[:]),
		"updatedAt":      rec.UpdatedAt,
	})
	return http.StatusOK
}

func (s *Server) handleComplianceDocuments(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	docs, err := s.compliance.Documents(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	results := make([]docResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, docResult{
			PropertyID:   doc.PropertyID,
			DocType:      string(doc.Type),
			Hash:         "0x" + hex.EncodeToString(doc.Hash[:]),
			RegisteredAt: doc.RegisteredAt,
		})
	}
	writeResult(w, req.ID, results)
	return http.StatusOK
}
