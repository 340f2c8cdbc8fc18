package escrow

import (
	"fmt"
	"math/big"
)

// List places a deed token into escrow custody and opens it for sale. The
// caller must be the recognized seller (or the owner acting with listing
// authority). A property previously cancelled may be relisted through the
// same path once deed custody has been re-approved.
func (e *Engine) List(caller [20]byte, id uint64, price, escrowAmount *big.Int, listingType ListingType, conditions *SaleConditions) (*Property, error) {
	if err := e.requireWired(); err != nil {
		return nil, err
	}
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	if caller != e.parties.Seller && caller != e.parties.Owner {
		return nil, fmt.Errorf("%w: seller required to list", ErrUnauthorizedCaller)
	}
	if !listingType.Valid() {
		return nil, fmt.Errorf("%w: unknown listing type %d", ErrInvalidConfiguration, listingType)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidConfiguration)
	}
	if escrowAmount == nil || escrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: escrow amount must be non-negative", ErrInvalidConfiguration)
	}
	if escrowAmount.Cmp(price) > 0 {
		return nil, fmt.Errorf("%w: escrow amount exceeds price", ErrInvalidConfiguration)
	}
	now := e.now()
	var cond SaleConditions
	if conditions == nil {
		cond = DefaultSaleConditions(now)
	} else {
		cond = *conditions
	}
	if cond.ListingExpiry <= now {
		return nil, fmt.Errorf("%w: listing expiry must be in the future", ErrInvalidConfiguration)
	}
	if cond.RequiresInspection && cond.InspectionPeriod <= 0 {
		return nil, fmt.Errorf("%w: inspection period must be positive", ErrInvalidConfiguration)
	}
	if cond.RequiresFinancing && cond.FinancingPeriod <= 0 {
		return nil, fmt.Errorf("%w: financing period must be positive", ErrInvalidConfiguration)
	}

	prior := StatusNotListed
	if existing, ok := e.state.PropertyGet(id); ok {
		if existing.Status != StatusNotListed && existing.Status != StatusCancelled {
			return nil, fmt.Errorf("%w: property %d is %s", ErrInvalidState, id, existing.Status)
		}
		prior = existing.Status
	}

	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	vault, err := e.state.VaultAddress()
	if err != nil {
		return nil, err
	}
	owner, err := e.registry.OwnerOf(id)
	if err != nil {
		return nil, fmt.Errorf("%w: deed %d: %v", ErrInvalidConfiguration, id, err)
	}
	if owner != vault {
		if owner != e.parties.Seller {
			return nil, fmt.Errorf("%w: deed %d not held by seller", ErrUnauthorizedCaller, id)
		}
		approved, err := e.registry.GetApproved(id)
		if err != nil {
			return nil, err
		}
		if approved != vault {
			return nil, fmt.Errorf("%w: escrow not approved for deed %d", ErrInvalidConfiguration, id)
		}
		if err := e.registry.TransferFrom(owner, vault, id); err != nil {
			return nil, err
		}
	}

	prop := &Property{
		ID:           id,
		Seller:       e.parties.Seller,
		Price:        cloneBigInt(price),
		EscrowAmount: cloneBigInt(escrowAmount),
		PaidAmount:   big.NewInt(0),
		Status:       StatusListed,
		ListingType:  listingType,
		Conditions:   cond,
		ListedAt:     now,
	}
	if err := e.storeProperty(prop); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(prop))
	e.emit(NewStatusChangedEvent(id, prior, StatusListed))
	return prop.Clone(), nil
}

// selectBuyer records the buyer on the sale record and advances the status
// past Listed. The contract clock starts here.
func (e *Engine) selectBuyer(prop *Property, buyer [20]byte, method PaymentMethod) {
	prop.CurrentBuyer = buyer
	prop.PaymentMethod = method
	prop.ContractSignedAt = e.now()
	if prop.Conditions.RequiresInspection {
		e.setStatus(prop, StatusUnderContract)
	} else {
		// No inspection gate: move straight to the approval stage.
		e.setStatus(prop, StatusAwaitingApprovals)
	}
}

func (e *Engine) requireOpenListing(prop *Property) error {
	if prop.Status != StatusListed {
		return fmt.Errorf("%w: property %d is %s", ErrInvalidState, prop.ID, prop.Status)
	}
	if e.now() > prop.Conditions.ListingExpiry {
		return fmt.Errorf("%w: property %d", ErrListingExpired, prop.ID)
	}
	return nil
}

// PurchaseDirectly buys a fixed-price listing outright. The attached value
// must equal the listing price exactly.
func (e *Engine) PurchaseDirectly(caller [20]byte, id uint64, value *big.Int) error {
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
	if prop.ListingType != ListingFixedPrice {
		return fmt.Errorf("%w: property %d is an auction listing", ErrInvalidState, id)
	}
	if err := e.requireOpenListing(prop); err != nil {
		return err
	}
	if !e.isPrivileged(caller) {
		if err := e.checkCompliance(caller, id); err != nil {
			return err
		}
	}
	if value == nil || value.Cmp(prop.Price) != 0 {
		return fmt.Errorf("%w: direct purchase requires exactly %s", ErrIncorrectValue, prop.Price)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.collect(id, caller, value); err != nil {
		return err
	}
	prop.PaidAmount = cloneBigInt(value)
	e.selectBuyer(prop, caller, PaymentDirect)
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewDepositPaidEvent(id, caller, value.String()))
	return nil
}

// PurchaseWithDeposit posts the earnest deposit and selects the
// deposit-and-lender payment path. The attached value must equal the listing's
// escrow amount exactly.
func (e *Engine) PurchaseWithDeposit(caller [20]byte, id uint64, value *big.Int) error {
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
	if err := e.requireOpenListing(prop); err != nil {
		return err
	}
	if !e.isPrivileged(caller) {
		if err := e.checkCompliance(caller, id); err != nil {
			return err
		}
	}
	if value == nil || value.Cmp(prop.EscrowAmount) != 0 {
		return fmt.Errorf("%w: earnest deposit requires exactly %s", ErrIncorrectValue, prop.EscrowAmount)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.collect(id, caller, value); err != nil {
		return err
	}
	prop.PaidAmount = cloneBigInt(value)
	e.selectBuyer(prop, caller, PaymentDepositAndLender)
	if err := e.storeProperty(prop); err != nil {
		return err
	}
	e.emit(NewDepositPaidEvent(id, caller, value.String()))
	return nil
}

// DepositEarnest is the legacy entry point for listings without an explicit
// payment-method selector. It behaves exactly like PurchaseWithDeposit.
func (e *Engine) DepositEarnest(caller [20]byte, id uint64, value *big.Int) error {
	return e.PurchaseWithDeposit(caller, id, value)
}
