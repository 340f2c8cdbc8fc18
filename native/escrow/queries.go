package escrow

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
)

// GetProperty returns the sale record for the id.
func (e *Engine) GetProperty(id uint64) (*Property, error) {
	return e.loadProperty(id)
}

// Bids returns the active bids for a property, ordered by bidder address.
func (e *Engine) Bids(id uint64) ([]*Bid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bids, err := e.state.BidList(id)
	if err != nil {
		return nil, err
	}
	sort.Slice(bids, func(i, j int) bool {
		return bytes.Compare(bids[i].Bidder[:], bids[j].Bidder[:]) < 0
	})
	out := make([]*Bid, 0, len(bids))
	for _, bid := range bids {
		out = append(out, bid.Clone())
	}
	return out, nil
}

// HighestBid returns the bidder and declared amount of the current highest
// bid. Ties resolve to the earliest placed bid, then to the lower address so
// the result is deterministic.
func (e *Engine) HighestBid(id uint64) ([20]byte, *big.Int, error) {
	bids, err := e.Bids(id)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if len(bids) == 0 {
		return [20]byte{}, big.NewInt(0), nil
	}
	best := bids[0]
	for _, bid := range bids[1:] {
		switch bid.Amount.Cmp(best.Amount) {
		case 1:
			best = bid
		case 0:
			if bid.PlacedAt < best.PlacedAt {
				best = bid
			}
		}
	}
	return best.Bidder, cloneBigInt(best.Amount), nil
}

// ApprovalStatus returns the recorded role approvals for a property.
func (e *Engine) ApprovalStatus(id uint64) (Approvals, error) {
	prop, err := e.loadProperty(id)
	if err != nil {
		return Approvals{}, err
	}
	return prop.Approvals, nil
}

// PropertyBalance returns the vault value attributable to the property: the
// paid amount plus all active bid collateral. The escrow sub-ledger must
// cover the total; it may exceed it when a failed refund stranded collateral
// in the vault for emergency recovery.
func (e *Engine) PropertyBalance(id uint64) (*big.Int, error) {
	prop, err := e.loadProperty(id)
	if err != nil {
		return nil, err
	}
	total := cloneBigInt(prop.PaidAmount)
	bids, err := e.Bids(id)
	if err != nil {
		return nil, err
	}
	for _, bid := range bids {
		total.Add(total, bid.Collateral)
	}
	ledger, err := e.state.EscrowBalance(id)
	if err != nil {
		return nil, err
	}
	if ledger != nil && ledger.Cmp(total) < 0 {
		return nil, fmt.Errorf("escrow: sub-ledger divergence for property %d: ledger %s, entitlements %s", id, ledger, total)
	}
	return total, nil
}

// IsListingExpired reports whether the listing window has passed.
func (e *Engine) IsListingExpired(id uint64) (bool, error) {
	prop, err := e.loadProperty(id)
	if err != nil {
		return false, err
	}
	return e.now() > prop.Conditions.ListingExpiry, nil
}
