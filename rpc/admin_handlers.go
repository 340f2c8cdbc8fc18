package rpc

import (
	"net/http"
)

type adminFeeParams struct {
	Caller string `json:"caller"`
	Bps    uint32 `json:"bps"`
}

func (s *Server) handleAdminSetPlatformFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params adminFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.SetPlatformFee(caller, params.Bps); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type adminAddressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *Server) addressCall(w http.ResponseWriter, req *RPCRequest, call func(caller, addr [20]byte) error) int {
	var params adminAddressParams
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
	if err := call(caller, addr); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

func (s *Server) handleAdminSetFeeRecipient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.addressCall(w, req, s.escrow.SetFeeRecipient)
}

func (s *Server) handleAdminSetInspector(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.addressCall(w, req, s.escrow.SetInspector)
}

func (s *Server) handleAdminSetLender(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.addressCall(w, req, s.escrow.SetLender)
}

type adminCallerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) callerCall(w http.ResponseWriter, req *RPCRequest, call func(caller [20]byte) error) int {
	var params adminCallerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := call(caller); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

func (s *Server) handleAdminPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.callerCall(w, req, s.escrow.Pause)
}

func (s *Server) handleAdminUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.callerCall(w, req, s.escrow.Unpause)
}

type adminEmergencyCancelParams struct {
	Caller    string `json:"caller"`
	ID        uint64 `json:"id"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleAdminEmergencyCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params adminEmergencyCancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.EmergencyCancelSale(caller, params.ID, recipient); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type adminWithdrawParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (s *Server) handleAdminEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params adminWithdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.EmergencyWithdraw(caller, recipient, amount); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}
