package escrow

import (
	"fmt"
	"math/big"
)

// UpdateInspectionStatus records the inspector's verdict. The window is
// inclusive: an update at exactly ContractSignedAt + InspectionPeriod is the
// last valid instant. A passed inspection advances the sale to the approval
// stage; a failed one parks it in InspectionPending, from where the inspector
// may still pass it within the window or either party may cancel.
func (e *Engine) UpdateInspectionStatus(caller [20]byte, id uint64, passed bool) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if caller != e.parties.Inspector {
		return fmt.Errorf("%w: inspector required", ErrUnauthorizedCaller)
	}
	prop, err := e.loadProperty(id)
	if err != nil {
		return err
	}
	if prop.Status != StatusUnderContract && prop.Status != StatusInspectionPending {
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, id, prop.Status)
	}
	if e.now() > prop.ContractSignedAt+prop.Conditions.InspectionPeriod {
		return fmt.Errorf("%w: property %d", ErrInspectionPeriodExpired, id)
	}
	prop.InspectionPassed = passed
	if passed {
		e.setStatus(prop, StatusAwaitingApprovals)
	} else {
		e.setStatus(prop, StatusInspectionPending)
	}
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewInspectionUpdatedEvent(id, passed, caller))
	return nil
}

// ApproveSale records the caller's role approval. Re-approving is idempotent.
// Once every required role has approved the sale flips to ReadyToClose.
func (e *Engine) ApproveSale(caller [20]byte, id uint64) error {
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
	if prop.Status != StatusAwaitingApprovals {
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, id, prop.Status)
	}
	var role string
	switch {
	case prop.HasBuyer() && caller == prop.CurrentBuyer:
		prop.Approvals.Buyer = true
		role = "buyer"
	case caller == prop.Seller:
		prop.Approvals.Seller = true
		role = "seller"
	case caller == e.parties.Lender && prop.PaymentMethod == PaymentDepositAndLender:
		prop.Approvals.Lender = true
		role = "lender"
	default:
		return fmt.Errorf("%w: not a party to property %d", ErrUnauthorizedCaller, id)
	}
	if prop.Approvals.ReadyToClose(prop.PaymentMethod) {
		e.setStatus(prop, StatusReadyToClose)
	}
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewApprovalGivenEvent(id, role, caller))
	return nil
}

// FundByLender supplies the financed remainder, exactly price minus the
// escrow amount. Funding implies lender approval. The financing window is
// inclusive at the deadline instant.
func (e *Engine) FundByLender(caller [20]byte, id uint64, value *big.Int) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.guardPaused(); err != nil {
		return err
	}
	if caller != e.parties.Lender {
		return fmt.Errorf("%w: lender required", ErrUnauthorizedCaller)
	}
	prop, err := e.loadProperty(id)
	if err != nil {
		return err
	}
	if prop.PaymentMethod != PaymentDepositAndLender {
		return fmt.Errorf("%w: property %d is on the direct payment path", ErrInvalidState, id)
	}
	if prop.Status != StatusAwaitingApprovals {
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, id, prop.Status)
	}
	if e.now() > prop.ContractSignedAt+prop.Conditions.FinancingPeriod {
		return fmt.Errorf("%w: property %d", ErrFinancingPeriodExpired, id)
	}
	required := new(big.Int).Sub(prop.Price, prop.EscrowAmount)
	if value == nil || value.Cmp(required) != 0 {
		return fmt.Errorf("%w: financing requires exactly %s", ErrIncorrectValue, required)
	}
	newPaid := new(big.Int).Add(prop.PaidAmount, value)
	if newPaid.Cmp(prop.Price) > 0 {
		return fmt.Errorf("%w: funding would exceed price", ErrIncorrectValue)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.collect(id, caller, value); err != nil {
		return err
	}
	prop.PaidAmount = newPaid
	prop.Approvals.Lender = true
	if prop.Approvals.ReadyToClose(prop.PaymentMethod) {
		e.setStatus(prop, StatusReadyToClose)
	}
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewFundsReceivedEvent(id, caller, value.String()))
	e.emit(NewApprovalGivenEvent(id, "lender", caller))
	return nil
}

// FinalizeSale settles the transaction: the compliance gate is re-checked
// authoritatively, the deed transfers to the buyer, the seller receives the
// price net of the platform fee and the fee recipient receives the fee. All
// sale state is zeroed before any external transfer so a reentrant callback
// observes a completed sale.
func (e *Engine) FinalizeSale(caller [20]byte, id uint64) error {
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
		return fmt.Errorf("%w: seller required to finalize", ErrUnauthorizedCaller)
	}
	if prop.Status != StatusReadyToClose {
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, id, prop.Status)
	}
	if !prop.HasBuyer() {
		return fmt.Errorf("%w: property %d has no buyer", ErrInvalidState, id)
	}
	if prop.PaidAmount.Cmp(prop.Price) != 0 {
		return fmt.Errorf("%w: sale not fully funded (%s of %s)", ErrIncorrectValue, prop.PaidAmount, prop.Price)
	}
	if err := e.checkCompliance(prop.CurrentBuyer, id); err != nil {
		return err
	}

	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	buyer := prop.CurrentBuyer
	price := cloneBigInt(prop.Price)
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(uint64(e.platformFeeBps)))
	fee.Div(fee, big.NewInt(10_000))
	payout := new(big.Int).Sub(price, fee)

	// Effects before interactions: the record is committed Sold before any
	// value or custody moves. A failed settlement step restores it wholesale
	// so the sale stays ReadyToClose with its funding intact.
	prevApprovals := prop.Approvals
	prop.PaidAmount = big.NewInt(0)
	prop.Approvals.Clear()
	prop.Status = StatusSold
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	restore := func(cause error) error {
		prop.PaidAmount = cloneBigInt(price)
		prop.Approvals = prevApprovals
		prop.Status = StatusReadyToClose
		if storeErr := e.storeProperty(prop); storeErr != nil {
			return fmt.Errorf("escrow: finalize failed (%v) and record restore failed: %w", cause, storeErr)
		}
		return cause
	}

	vault, err := e.state.VaultAddress()
	if err != nil {
		return restore(err)
	}
	if err := e.state.EscrowDebit(id, price); err != nil {
		return restore(err)
	}
	if payout.Sign() > 0 {
		if err := e.transferValue(vault, prop.Seller, payout); err != nil {
			_ = e.state.EscrowCredit(id, price)
			return restore(err)
		}
	}
	if fee.Sign() > 0 {
		if err := e.transferValue(vault, e.parties.FeeRecipient, fee); err != nil {
			if payout.Sign() > 0 {
				_ = e.transferValue(prop.Seller, vault, payout)
			}
			_ = e.state.EscrowCredit(id, price)
			return restore(err)
		}
	}
	// Deed custody moves last: the registry cannot claw a deed back from the
	// buyer, so every fallible money step precedes it.
	if err := e.registry.TransferFrom(vault, buyer, id); err != nil {
		if fee.Sign() > 0 {
			_ = e.transferValue(e.parties.FeeRecipient, vault, fee)
		}
		if payout.Sign() > 0 {
			_ = e.transferValue(prop.Seller, vault, payout)
		}
		_ = e.state.EscrowCredit(id, price)
		return restore(err)
	}
	e.emit(NewStatusChangedEvent(id, StatusReadyToClose, StatusSold))
	e.emit(NewSaleFinalizedEvent(id, buyer, price.String(), fee.String()))
	return nil
}

// CancelSale aborts an in-flight sale. The buyer's paid amount is refunded in
// full, outstanding bid collateral is returned, deed custody goes back to the
// seller and the record lands in Cancelled, from where the seller may relist.
func (e *Engine) CancelSale(caller [20]byte, id uint64, reason string) error {
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
	authorized := caller == prop.Seller || (prop.HasBuyer() && caller == prop.CurrentBuyer)
	if !authorized {
		return fmt.Errorf("%w: buyer or seller required to cancel", ErrUnauthorizedCaller)
	}
	refundTo := prop.CurrentBuyer
	return e.cancel(prop, refundTo, reason)
}

// EmergencyCancelSale is the owner's escape hatch for stuck or compromised
// buyers: it forces cancellation with the refund redirected to an explicit
// recipient, and it works while the engine is paused.
func (e *Engine) EmergencyCancelSale(caller [20]byte, id uint64, refundRecipient [20]byte) error {
	if err := e.requireWired(); err != nil {
		return err
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	prop, err := e.loadProperty(id)
	if err != nil {
		return err
	}
	return e.cancel(prop, refundRecipient, "emergency cancellation")
}

func (e *Engine) cancel(prop *Property, refundTo [20]byte, reason string) error {
	switch prop.Status {
	case StatusListed, StatusUnderContract, StatusInspectionPending, StatusAwaitingApprovals:
	default:
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, prop.ID, prop.Status)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	id := prop.ID
	refund := cloneBigInt(prop.PaidAmount)
	prevStatus := prop.Status
	prevBuyer := prop.CurrentBuyer
	prevApprovals := prop.Approvals
	prevInspection := prop.InspectionPassed

	// Effects before interactions: the record is terminal before any value
	// or custody leaves the vault.
	prop.PaidAmount = big.NewInt(0)
	prop.CurrentBuyer = [20]byte{}
	prop.Approvals.Clear()
	prop.InspectionPassed = false
	prop.Status = StatusCancelled
	if err := e.storeProperty(prop); err != nil {
		return err
	}

	if refund.Sign() > 0 && refundTo != ([20]byte{}) {
		if err := e.payOut(id, refundTo, refund); err != nil {
			// The primary refund must land in full or the whole
			// cancellation reverts; the deposit stays in the vault and the
			// sale record keeps its pre-cancel shape.
			prop.PaidAmount = refund
			prop.CurrentBuyer = prevBuyer
			prop.Approvals = prevApprovals
			prop.InspectionPassed = prevInspection
			prop.Status = prevStatus
			if storeErr := e.storeProperty(prop); storeErr != nil {
				return fmt.Errorf("escrow: cancel refund failed (%v) and record restore failed: %w", err, storeErr)
			}
			return err
		}
	}
	e.emit(NewStatusChangedEvent(id, prevStatus, StatusCancelled))
	e.emit(NewSaleCancelledEvent(id, reason))

	e.refundBidders(id)

	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	owner, err := e.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner == vault {
		if err := e.registry.TransferFrom(vault, prop.Seller, id); err != nil {
			return err
		}
	}
	return nil
}
