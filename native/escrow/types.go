package escrow

import (
	"fmt"
	"math/big"
)

// PropertyStatus represents the lifecycle states of a tokenized property sale.
type PropertyStatus uint8

const (
	StatusNotListed PropertyStatus = iota
	StatusListed
	StatusUnderContract
	StatusInspectionPending
	StatusAwaitingApprovals
	StatusReadyToClose
	StatusSold
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s PropertyStatus) Valid() bool {
	return s <= StatusCancelled
}

// String renders the canonical lowercase status name used in events and RPC
// responses.
func (s PropertyStatus) String() string {
	switch s {
	case StatusNotListed:
		return "not_listed"
	case StatusListed:
		return "listed"
	case StatusUnderContract:
		return "under_contract"
	case StatusInspectionPending:
		return "inspection_pending"
	case StatusAwaitingApprovals:
		return "awaiting_approvals"
	case StatusReadyToClose:
		return "ready_to_close"
	case StatusSold:
		return "sold"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ListingType distinguishes fixed-price sales from competitive auctions.
type ListingType uint8

const (
	ListingFixedPrice ListingType = iota
	ListingAuction
)

func (l ListingType) Valid() bool { return l == ListingFixedPrice || l == ListingAuction }

func (l ListingType) String() string {
	if l == ListingAuction {
		return "auction"
	}
	return "fixed_price"
}

// PaymentMethod selects how the buyer supplies the purchase price.
type PaymentMethod uint8

const (
	// PaymentDirect pays the full price up front; no lender participates.
	PaymentDirect PaymentMethod = iota
	// PaymentDepositAndLender posts the earnest deposit up front and relies
	// on lender financing for the remainder.
	PaymentDepositAndLender
)

func (p PaymentMethod) Valid() bool { return p == PaymentDirect || p == PaymentDepositAndLender }

func (p PaymentMethod) String() string {
	if p == PaymentDepositAndLender {
		return "deposit_and_lender"
	}
	return "direct"
}

// SaleConditions captures the timing windows and requirement flags agreed at
// listing time. Periods are in seconds and anchored at ContractSignedAt.
type SaleConditions struct {
	InspectionPeriod   int64 `json:"inspectionPeriod"`
	FinancingPeriod    int64 `json:"financingPeriod"`
	RequiresInspection bool  `json:"requiresInspection"`
	RequiresFinancing  bool  `json:"requiresFinancing"`
	ListingExpiry      int64 `json:"listingExpiry"`
}

const (
	defaultInspectionPeriod int64 = 7 * 24 * 60 * 60
	defaultFinancingPeriod  int64 = 30 * 24 * 60 * 60
	defaultListingWindow    int64 = 90 * 24 * 60 * 60
)

// DefaultSaleConditions returns the standard listing terms: a seven day
// inspection window, a thirty day financing window and a ninety day listing
// expiry, with both inspection and financing required.
func DefaultSaleConditions(now int64) SaleConditions {
	return SaleConditions{
		InspectionPeriod:   defaultInspectionPeriod,
		FinancingPeriod:    defaultFinancingPeriod,
		RequiresInspection: true,
		RequiresFinancing:  true,
		ListingExpiry:      now + defaultListingWindow,
	}
}

// Approvals records the per-role sign-off on a pending sale.
type Approvals struct {
	Buyer  bool `json:"buyer"`
	Seller bool `json:"seller"`
	Lender bool `json:"lender"`
}

// ReadyToClose reports whether every required role has approved. The lender
// approval is only required on the deposit-and-lender path.
func (a Approvals) ReadyToClose(method PaymentMethod) bool {
	if !a.Buyer || !a.Seller {
		return false
	}
	if method == PaymentDirect {
		return true
	}
	return a.Lender
}

// Clear resets all recorded approvals.
func (a *Approvals) Clear() { *a = Approvals{} }

// Property is the sale record for a single deed token. PaidAmount mirrors the
// escrow sub-ledger balance held for the property at all times.
type Property struct {
	ID               uint64         `json:"id"`
	Seller           [20]byte       `json:"seller"`
	Price            *big.Int       `json:"price"`
	EscrowAmount     *big.Int       `json:"escrowAmount"`
	PaidAmount       *big.Int       `json:"paidAmount"`
	CurrentBuyer     [20]byte       `json:"currentBuyer"`
	Status           PropertyStatus `json:"status"`
	ListingType      ListingType    `json:"listingType"`
	PaymentMethod    PaymentMethod  `json:"paymentMethod"`
	InspectionPassed bool           `json:"inspectionPassed"`
	Conditions       SaleConditions `json:"conditions"`
	Approvals        Approvals      `json:"approvals"`
	ListedAt         int64          `json:"listedAt"`
	ContractSignedAt int64          `json:"contractSignedAt"`
}

// HasBuyer reports whether a buyer has been selected for the property.
func (p *Property) HasBuyer() bool {
	return p != nil && p.CurrentBuyer != ([20]byte{})
}

// Clone returns a deep copy of the property record so callers can safely
// mutate the copy without affecting the stored instance.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Price = cloneBigInt(p.Price)
	clone.EscrowAmount = cloneBigInt(p.EscrowAmount)
	clone.PaidAmount = cloneBigInt(p.PaidAmount)
	return &clone
}

// SanitizeProperty validates and normalises the supplied sale record,
// returning a cloned instance with non-nil amount fields. The function does
// not mutate the original value.
func SanitizeProperty(p *Property) (*Property, error) {
	if p == nil {
		return nil, fmt.Errorf("nil property")
	}
	clone := p.Clone()
	if clone.Price == nil {
		clone.Price = big.NewInt(0)
	}
	if clone.EscrowAmount == nil {
		clone.EscrowAmount = big.NewInt(0)
	}
	if clone.PaidAmount == nil {
		clone.PaidAmount = big.NewInt(0)
	}
	if clone.Price.Sign() < 0 || clone.EscrowAmount.Sign() < 0 || clone.PaidAmount.Sign() < 0 {
		return nil, fmt.Errorf("property amounts must be non-negative")
	}
	if clone.EscrowAmount.Cmp(clone.Price) > 0 {
		return nil, fmt.Errorf("escrow amount exceeds price")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid property status: %d", clone.Status)
	}
	if !clone.ListingType.Valid() {
		return nil, fmt.Errorf("invalid listing type: %d", clone.ListingType)
	}
	if !clone.PaymentMethod.Valid() {
		return nil, fmt.Errorf("invalid payment method: %d", clone.PaymentMethod)
	}
	return clone, nil
}

// Bid records an auction bid. Amount is the declared bid; Collateral is the
// value actually held by the escrow vault backing the bid. On the direct
// payment path the two are equal, on the deposit-and-lender path the
// collateral is the listing's escrow amount.
type Bid struct {
	PropertyID uint64        `json:"propertyId"`
	Bidder     [20]byte      `json:"bidder"`
	Amount     *big.Int      `json:"amount"`
	Collateral *big.Int      `json:"collateral"`
	Method     PaymentMethod `json:"method"`
	PlacedAt   int64         `json:"placedAt"`
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Amount = cloneBigInt(b.Amount)
	clone.Collateral = cloneBigInt(b.Collateral)
	return &clone
}

// SanitizeBid validates the bid record and returns a clone with non-nil
// amounts.
func SanitizeBid(b *Bid) (*Bid, error) {
	if b == nil {
		return nil, fmt.Errorf("nil bid")
	}
	clone := b.Clone()
	if clone.Amount == nil {
		clone.Amount = big.NewInt(0)
	}
	if clone.Collateral == nil {
		clone.Collateral = big.NewInt(0)
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("bid amount must be positive")
	}
	if clone.Collateral.Sign() < 0 {
		return nil, fmt.Errorf("bid collateral must be non-negative")
	}
	if !clone.Method.Valid() {
		return nil, fmt.Errorf("invalid bid payment method: %d", clone.Method)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
