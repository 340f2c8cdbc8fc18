package escrow

import (
	"encoding/hex"
	"strconv"

	"deedchain/core/types"
)

const (
	EventTypePropertyListed    = "escrow.property.listed"
	EventTypeStatusChanged     = "escrow.property.status_changed"
	EventTypeBidPlaced         = "escrow.property.bid_placed"
	EventTypeBidWithdrawn      = "escrow.property.bid_withdrawn"
	EventTypeBidAccepted       = "escrow.property.bid_accepted"
	EventTypeBidRefundFailed   = "escrow.property.bid_refund_failed"
	EventTypeDepositPaid       = "escrow.property.deposit_paid"
	EventTypeFundsReceived     = "escrow.property.funds_received"
	EventTypeApprovalGiven     = "escrow.property.approval_given"
	EventTypeInspectionUpdated = "escrow.property.inspection_updated"
	EventTypeSaleFinalized     = "escrow.property.sale_finalized"
	EventTypeSaleCancelled     = "escrow.property.sale_cancelled"
	EventTypeFeeUpdated        = "escrow.admin.fee_updated"
	EventTypeFeeRecipientSet   = "escrow.admin.fee_recipient_set"
	EventTypePaused            = "escrow.admin.paused"
	EventTypeUnpaused          = "escrow.admin.unpaused"
	EventTypeEmergencyWithdraw = "escrow.admin.emergency_withdraw"
)

// NewListedEvent returns the canonical payload for a freshly listed property.
func NewListedEvent(p *Property) *types.Event {
	evt := newPropertyEvent(EventTypePropertyListed, p)
	if p != nil {
		evt.Attributes["listingType"] = p.ListingType.String()
	}
	return evt
}

// NewStatusChangedEvent records a lifecycle transition for audit consumers.
func NewStatusChangedEvent(id uint64, from, to PropertyStatus) *types.Event {
	return &types.Event{Type: EventTypeStatusChanged, Attributes: map[string]string{
		"id":   strconv.FormatUint(id, 10),
		"from": from.String(),
		"to":   to.String(),
	}}
}

// NewBidPlacedEvent returns the payload emitted when a bid is posted or
// replaced.
func NewBidPlacedEvent(b *Bid) *types.Event {
	return newBidEvent(EventTypeBidPlaced, b)
}

// NewBidWithdrawnEvent returns the payload emitted when a bidder withdraws.
func NewBidWithdrawnEvent(b *Bid) *types.Event {
	return newBidEvent(EventTypeBidWithdrawn, b)
}

// NewBidAcceptedEvent returns the payload emitted when the seller accepts a
// bid.
func NewBidAcceptedEvent(b *Bid) *types.Event {
	return newBidEvent(EventTypeBidAccepted, b)
}

// NewBidRefundFailedEvent surfaces a non-fatal refund failure during the
// per-bidder refund loop. The stranded collateral remains in the vault and is
// recoverable through the emergency withdrawal path.
func NewBidRefundFailedEvent(id uint64, bidder [20]byte, reason string) *types.Event {
	return &types.Event{Type: EventTypeBidRefundFailed, Attributes: map[string]string{
		"id":     strconv.FormatUint(id, 10),
		"bidder": hex.EncodeToString(bidder[:]),
		"reason": reason,
	}}
}

// NewDepositPaidEvent records an earnest deposit or direct purchase payment.
func NewDepositPaidEvent(id uint64, payer [20]byte, amount string) *types.Event {
	return &types.Event{Type: EventTypeDepositPaid, Attributes: map[string]string{
		"id":     strconv.FormatUint(id, 10),
		"payer":  hex.EncodeToString(payer[:]),
		"amount": amount,
	}}
}

// NewFundsReceivedEvent records lender financing arriving in the vault.
func NewFundsReceivedEvent(id uint64, from [20]byte, amount string) *types.Event {
	return &types.Event{Type: EventTypeFundsReceived, Attributes: map[string]string{
		"id":     strconv.FormatUint(id, 10),
		"from":   hex.EncodeToString(from[:]),
		"amount": amount,
	}}
}

// NewApprovalGivenEvent records a role approving the sale.
func NewApprovalGivenEvent(id uint64, role string, approver [20]byte) *types.Event {
	return &types.Event{Type: EventTypeApprovalGiven, Attributes: map[string]string{
		"id":       strconv.FormatUint(id, 10),
		"role":     role,
		"approver": hex.EncodeToString(approver[:]),
	}}
}

// NewInspectionUpdatedEvent records the inspector's verdict.
func NewInspectionUpdatedEvent(id uint64, passed bool, inspector [20]byte) *types.Event {
	return &types.Event{Type: EventTypeInspectionUpdated, Attributes: map[string]string{
		"id":        strconv.FormatUint(id, 10),
		"passed":    strconv.FormatBool(passed),
		"inspector": hex.EncodeToString(inspector[:]),
	}}
}

// NewSaleFinalizedEvent records the settlement of a sale.
func NewSaleFinalizedEvent(id uint64, buyer [20]byte, totalPaid, fee string) *types.Event {
	return &types.Event{Type: EventTypeSaleFinalized, Attributes: map[string]string{
		"id":        strconv.FormatUint(id, 10),
		"buyer":     hex.EncodeToString(buyer[:]),
		"totalPaid": totalPaid,
		"fee":       fee,
	}}
}

// NewSaleCancelledEvent records a cancellation with the caller's reason.
func NewSaleCancelledEvent(id uint64, reason string) *types.Event {
	return &types.Event{Type: EventTypeSaleCancelled, Attributes: map[string]string{
		"id":     strconv.FormatUint(id, 10),
		"reason": reason,
	}}
}

// NewFeeUpdatedEvent records a platform fee change.
func NewFeeUpdatedEvent(bps uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"feeBps": strconv.FormatUint(uint64(bps), 10),
	}}
}

// NewFeeRecipientSetEvent records a fee recipient change.
func NewFeeRecipientSetEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeeRecipientSet, Attributes: map[string]string{
		"recipient": hex.EncodeToString(addr[:]),
	}}
}

// NewPausedEvent records the circuit breaker engaging.
func NewPausedEvent() *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{}}
}

// NewUnpausedEvent records the circuit breaker releasing.
func NewUnpausedEvent() *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: map[string]string{}}
}

// NewEmergencyWithdrawEvent records an admin sweep of vault balance.
func NewEmergencyWithdrawEvent(recipient [20]byte, amount string) *types.Event {
	return &types.Event{Type: EventTypeEmergencyWithdraw, Attributes: map[string]string{
		"recipient": hex.EncodeToString(recipient[:]),
		"amount":    amount,
	}}
}

func newPropertyEvent(eventType string, p *Property) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeProperty(p)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["price"] = sanitized.Price.String()
	attrs["escrowAmount"] = sanitized.EscrowAmount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["listedAt"] = strconv.FormatInt(sanitized.ListedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBidEvent(eventType string, b *Bid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeBid(b)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.PropertyID, 10)
	attrs["bidder"] = hex.EncodeToString(sanitized.Bidder[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["collateral"] = sanitized.Collateral.String()
	attrs["method"] = sanitized.Method.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
