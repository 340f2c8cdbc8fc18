package rpc

import (
	"net/http"
)

type registryMintParams struct {
	Caller string `json:"caller"`
	URI    string `json:"uri"`
}

func (s *Server) handleRegistryMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params registryMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	id, err := s.registry.Mint(caller, params.URI)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]uint64{"id": id})
	return http.StatusOK
}

type registryApproveParams struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
	ID       uint64 `json:"id"`
}

func (s *Server) handleRegistryApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params registryApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	// Zero operator clears the approval.
	var operator [20]byte
	if params.Operator != "" {
		operator, err = parseAddress(params.Operator)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
			return http.StatusBadRequest
		}
	}
	if err := s.registry.Approve(caller, operator, params.ID); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type registryMinterParams struct {
	Caller     string `json:"caller"`
	Minter     string `json:"minter"`
	Authorized bool   `json:"authorized"`
}

func (s *Server) handleRegistrySetMinter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params registryMinterParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	minter, err := parseAddress(params.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.registry.SetAuthorizedMinter(caller, minter, params.Authorized); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

func (s *Server) handleRegistryOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	owner, err := s.registry.OwnerOf(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"owner": encodeAddress(owner)})
	return http.StatusOK
}

func (s *Server) handleRegistryTokenURI(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	uri, err := s.registry.TokenURI(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"uri": uri})
	return http.StatusOK
}
