package escrow

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
)

// collateralFor returns the value the vault must hold for a bid: the full
// declared amount on the direct path, the listing's escrow amount on the
// deposit-and-lender path.
func collateralFor(prop *Property, method PaymentMethod, amount *big.Int) *big.Int {
	if method == PaymentDepositAndLender {
		return cloneBigInt(prop.EscrowAmount)
	}
	return cloneBigInt(amount)
}

// PlaceBid posts or replaces an auction bid. The declared amount must meet
// the listing minimum; the attached value must settle the difference between
// the required collateral and whatever the vault already holds for this
// bidder.
func (e *Engine) PlaceBid(caller [20]byte, id uint64, method PaymentMethod, amount, value *big.Int) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if !method.Valid() {
		return fmt.Errorf("%w: unknown payment method %d", ErrInvalidConfiguration, method)
	}
	prop, err := e.loadProperty(id)
	if err != nil {
		return err
	}
	if prop.ListingType != ListingAuction {
		return fmt.Errorf("%w: property %d is not an auction listing", ErrInvalidState, id)
	}
	if err := e.requireOpenListing(prop); err != nil {
		return err
	}
	if !e.isPrivileged(caller) {
		if err := e.checkCompliance(caller, id); err != nil {
			return err
		}
	}
	if amount == nil || amount.Cmp(prop.Price) < 0 {
		return fmt.Errorf("%w: bid below minimum %s", ErrIncorrectValue, prop.Price)
	}

	required := collateralFor(prop, method, amount)
	held := big.NewInt(0)
	if existing, ok := e.state.BidGet(id, caller); ok && existing.Collateral != nil {
		held = cloneBigInt(existing.Collateral)
	}
	attached := cloneBigInt(value)
	delta := new(big.Int).Sub(required, held)

	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	switch delta.Sign() {
	case 1:
		if attached.Cmp(delta) != 0 {
			return fmt.Errorf("%w: bid requires exactly %s additional collateral", ErrIncorrectValue, delta)
		}
		if err := e.collect(id, caller, delta); err != nil {
			return err
		}
	case -1:
		if attached.Sign() != 0 {
			return fmt.Errorf("%w: replacement bid holds excess collateral, no value expected", ErrIncorrectValue)
		}
		refund := new(big.Int).Neg(delta)
		if err := e.payOut(id, caller, refund); err != nil {
			return err
		}
	default:
		if attached.Sign() != 0 {
			return fmt.Errorf("%w: collateral already held, no value expected", ErrIncorrectValue)
		}
	}

	bid := &Bid{
		PropertyID: id,
		Bidder:     caller,
		Amount:     cloneBigInt(amount),
		Collateral: required,
		Method:     method,
		PlacedAt:   e.now(),
	}
	if err := e.state.BidPut(bid); err != nil {
		return err
	}
	e.emit(NewBidPlacedEvent(bid))
	return nil
}

// WithdrawBid refunds exactly the collateral the vault holds for the caller
// and removes the bid. The ledger entry is removed before the value transfer
// so a reentrant withdrawal finds nothing to refund.
func (e *Engine) WithdrawBid(caller [20]byte, id uint64) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	bid, ok := e.state.BidGet(id, caller)
	if !ok {
		return fmt.Errorf("%w: no active bid on property %d", ErrBidNotFound, id)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	collateral := cloneBigInt(bid.Collateral)
	if err := e.state.BidRemove(id, caller); err != nil {
		return err
	}
	if err := e.payOut(id, caller, collateral); err != nil {
		return err
	}
	e.emit(NewBidWithdrawnEvent(bid))
	return nil
}

// AcceptBid selects the winning bidder. The listing must still be open and
// within its window. The accepted bid's declared amount becomes the contract
// price, its collateral becomes the paid amount, and every other bidder's
// collateral is refunded. A refund failing for one
// bidder is surfaced as an event and does not block the acceptance or the
// remaining refunds.
func (e *Engine) AcceptBid(caller [20]byte, id uint64, bidder [20]byte) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	prop, err := e.loadProperty(id)
	if err != nil {
		return err
	}
	if caller != prop.Seller {
		return fmt.Errorf("%w: seller required to accept bids", ErrUnauthorizedCaller)
	}
	if prop.ListingType != ListingAuction {
		return fmt.Errorf("%w: property %d is not an auction listing", ErrInvalidState, id)
	}
	if err := e.requireOpenListing(prop); err != nil {
		return err
	}
	accepted, ok := e.state.BidGet(id, bidder)
	if !ok {
		return fmt.Errorf("%w: %x has no bid on property %d", ErrBidNotFound, bidder, id)
	}

	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	// The accepted bid's collateral stays in the vault as the paid amount.
	if err := e.state.BidRemove(id, bidder); err != nil {
		return err
	}
	prop.Price = cloneBigInt(accepted.Amount)
	prop.PaidAmount = cloneBigInt(accepted.Collateral)
	e.selectBuyer(prop, bidder, accepted.Method)
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewBidAcceptedEvent(accepted))

	e.refundBidders(id)
	return nil
}

// refundBidders returns every outstanding bidder's collateral, one bidder at
// a time. Each entry is removed before its transfer; a failed transfer is
// logged via event and the loop continues, leaving the stranded value in the
// vault for emergency recovery.
func (e *Engine) refundBidders(id uint64) {
	bids, err := e.state.BidList(id)
	if err != nil {
		e.emit(NewBidRefundFailedEvent(id, [20]byte{}, err.Error()))
		return
	}
	sort.Slice(bids, func(i, j int) bool {
		return bytes.Compare(bids[i].Bidder[:], bids[j].Bidder[:]) < 0
	})
	for _, bid := range bids {
		collateral := cloneBigInt(bid.Collateral)
		if err := e.state.BidRemove(id, bid.Bidder); err != nil {
			e.emit(NewBidRefundFailedEvent(id, bid.Bidder, err.Error()))
			continue
		}
		if err := e.payOut(id, bid.Bidder, collateral); err != nil {
			e.emit(NewBidRefundFailedEvent(id, bid.Bidder, err.Error()))
			continue
		}
		e.emit(NewBidWithdrawnEvent(bid))
	}
}
