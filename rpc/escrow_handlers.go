package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"deedchain/native/escrow"
)

func parseListingType(label string) (escrow.ListingType, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "fixed_price":
		return escrow.ListingFixedPrice, nil
	case "auction":
		return escrow.ListingAuction, nil
	default:
		return 0, fmt.Errorf("invalid listing type %q", label)
	}
}

func parsePaymentMethod(label string) (escrow.PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "direct":
		return escrow.PaymentDirect, nil
	case "deposit_and_lender":
		return escrow.PaymentDepositAndLender, nil
	default:
		return 0, fmt.Errorf("invalid payment method %q", label)
	}
}

type conditionsParam struct {
	InspectionPeriod   int64 `json:"inspectionPeriod"`
	FinancingPeriod    int64 `json:"financingPeriod"`
	RequiresInspection bool  `json:"requiresInspection"`
	RequiresFinancing  bool  `json:"requiresFinancing"`
	ListingExpiry      int64 `json:"listingExpiry"`
}

type propertyResult struct {
	ID               uint64           `json:"id"`
	Seller           string           `json:"seller"`
	Price            string           `json:"price"`
	EscrowAmount     string           `json:"escrowAmount"`
	PaidAmount       string           `json:"paidAmount"`
	CurrentBuyer     string           `json:"currentBuyer,omitempty"`
	Status           string           `json:"status"`
	ListingType      string           `json:"listingType"`
	PaymentMethod    string           `json:"paymentMethod"`
	InspectionPassed bool             `json:"inspectionPassed"`
	Conditions       conditionsParam  `json:"conditions"`
	Approvals        escrow.Approvals `json:"approvals"`
	ListedAt         int64            `json:"listedAt"`
	ContractSignedAt int64            `json:"contractSignedAt,omitempty"`
}

func newPropertyResult(p *escrow.Property) *propertyResult {
	if p == nil {
		return nil
	}
	return &propertyResult{
		ID:               p.ID,
		Seller:           encodeAddress(p.Seller),
		Price:            p.Price.String(),
		EscrowAmount:     p.EscrowAmount.String(),
		PaidAmount:       p.PaidAmount.String(),
		CurrentBuyer:     encodeAddress(p.CurrentBuyer),
		Status:           p.Status.String(),
		ListingType:      p.ListingType.String(),
		PaymentMethod:    p.PaymentMethod.String(),
		InspectionPassed: p.InspectionPassed,
		Conditions: conditionsParam{
			InspectionPeriod:   p.Conditions.InspectionPeriod,
			FinancingPeriod:    p.Conditions.FinancingPeriod,
			RequiresInspection: p.Conditions.RequiresInspection,
			RequiresFinancing:  p.Conditions.RequiresFinancing,
			ListingExpiry:      p.Conditions.ListingExpiry,
		},
		Approvals:        p.Approvals,
		ListedAt:         p.ListedAt,
		ContractSignedAt: p.ContractSignedAt,
	}
}

type bidResult struct {
	PropertyID uint64 `json:"propertyId"`
	Bidder     string `json:"bidder"`
	Amount     string `json:"amount"`
	Collateral string `json:"collateral"`
	Method     string `json:"method"`
	PlacedAt   int64  `json:"placedAt"`
}

func newBidResult(b *escrow.Bid) *bidResult {
	if b == nil {
		return nil
	}
	return &bidResult{
		PropertyID: b.PropertyID,
		Bidder:     encodeAddress(b.Bidder),
		Amount:     b.Amount.String(),
		Collateral: b.Collateral.String(),
		Method:     b.Method.String(),
		PlacedAt:   b.PlacedAt,
	}
}

type escrowListParams struct {
	Caller       string           `json:"caller"`
	ID           uint64           `json:"id"`
	Price        string           `json:"price"`
	EscrowAmount string           `json:"escrowAmount"`
	ListingType  string           `json:"listingType,omitempty"`
	Conditions   *conditionsParam `json:"conditions,omitempty"`
}

func (s *Server) handleEscrowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowListParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	escrowAmount, err := parseAmount(params.EscrowAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	listingType, err := parseListingType(params.ListingType)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	var conditions *escrow.SaleConditions
	if params.Conditions != nil {
		conditions = &escrow.SaleConditions{
			InspectionPeriod:   params.Conditions.InspectionPeriod,
			FinancingPeriod:    params.Conditions.FinancingPeriod,
			RequiresInspection: params.Conditions.RequiresInspection,
			RequiresFinancing:  params.Conditions.RequiresFinancing,
			ListingExpiry:      params.Conditions.ListingExpiry,
		}
	}
	prop, err := s.escrow.List(caller, params.ID, price, escrowAmount, listingType, conditions)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, newPropertyResult(prop))
	return http.StatusOK
}

type escrowValueParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Value  string `json:"value"`
}

func (s *Server) valueCall(w http.ResponseWriter, req *RPCRequest, call func(caller [20]byte, id uint64, value *big.Int) error) int {
	var params escrowValueParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := call(caller, params.ID, value); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

func (s *Server) handleEscrowPurchaseDirectly(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.valueCall(w, req, s.escrow.PurchaseDirectly)
}

func (s *Server) handleEscrowPurchaseWithDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.valueCall(w, req, s.escrow.PurchaseWithDeposit)
}

func (s *Server) handleEscrowDepositEarnest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.valueCall(w, req, s.escrow.DepositEarnest)
}

func (s *Server) handleEscrowFundByLender(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.valueCall(w, req, s.escrow.FundByLender)
}

type escrowPlaceBidParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Method string `json:"method,omitempty"`
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

func (s *Server) handleEscrowPlaceBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowPlaceBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	method, err := parsePaymentMethod(params.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.PlaceBid(caller, params.ID, method, amount, value); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type escrowActorParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

func (s *Server) actorCall(w http.ResponseWriter, req *RPCRequest, call func(caller [20]byte, id uint64) error) int {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := call(caller, params.ID); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

func (s *Server) handleEscrowWithdrawBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.actorCall(w, req, s.escrow.WithdrawBid)
}

func (s *Server) handleEscrowApproveSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.actorCall(w, req, s.escrow.ApproveSale)
}

func (s *Server) handleEscrowFinalizeSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	return s.actorCall(w, req, s.escrow.FinalizeSale)
}

type escrowAcceptBidParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Bidder string `json:"bidder"`
}

func (s *Server) handleEscrowAcceptBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowAcceptBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.AcceptBid(caller, params.ID, bidder); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type escrowInspectionParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Passed bool   `json:"passed"`
}

func (s *Server) handleEscrowUpdateInspection(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowInspectionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.UpdateInspectionStatus(caller, params.ID, params.Passed); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type escrowCancelParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleEscrowCancelSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowCancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	if err := s.escrow.CancelSale(caller, params.ID, params.Reason); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	prop, err := s.escrow.GetProperty(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, newPropertyResult(prop))
	return http.StatusOK
}

func (s *Server) handleEscrowGetBids(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	bids, err := s.escrow.Bids(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	results := make([]*bidResult, 0, len(bids))
	for _, bid := range bids {
		results = append(results, newBidResult(bid))
	}
	writeResult(w, req.ID, results)
	return http.StatusOK
}

func (s *Server) handleEscrowHighestBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	bidder, amount, err := s.escrow.HighestBid(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{
		"bidder": encodeAddress(bidder),
		"amount": amount.String(),
	})
	return http.StatusOK
}

func (s *Server) handleEscrowApprovalStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	approvals, err := s.escrow.ApprovalStatus(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, approvals)
	return http.StatusOK
}

func (s *Server) handleEscrowPropertyBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	balance, err := s.escrow.PropertyBalance(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
	return http.StatusOK
}

func (s *Server) handleEscrowIsListingExpired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, err.Error(), nil)
		return http.StatusBadRequest
	}
	expired, err := s.escrow.IsListingExpired(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"expired": expired})
	return http.StatusOK
}
