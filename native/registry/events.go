package registry

import (
	"encoding/hex"
	"strconv"

	"deedchain/core/types"
)

const (
	EventTypeDeedMinted      = "registry.deed_minted"
	EventTypeDeedApproved    = "registry.deed_approved"
	EventTypeDeedTransferred = "registry.deed_transferred"
)

// NewDeedMintedEvent records a newly issued deed.
func NewDeedMintedEvent(deed *Deed) *types.Event {
	attrs := make(map[string]string)
	if deed != nil {
		attrs["id"] = strconv.FormatUint(deed.ID, 10)
		attrs["owner"] = hex.EncodeToString(deed.Owner[:])
		attrs["uri"] = deed.URI
	}
	return &types.Event{Type: EventTypeDeedMinted, Attributes: attrs}
}

// NewDeedApprovedEvent records an operator approval.
func NewDeedApprovedEvent(deed *Deed, operator [20]byte) *types.Event {
	attrs := make(map[string]string)
	if deed != nil {
		attrs["id"] = strconv.FormatUint(deed.ID, 10)
		attrs["operator"] = hex.EncodeToString(operator[:])
	}
	return &types.Event{Type: EventTypeDeedApproved, Attributes: attrs}
}

// NewDeedTransferredEvent records an ownership transfer.
func NewDeedTransferredEvent(id uint64, from, to [20]byte) *types.Event {
	return &types.Event{Type: EventTypeDeedTransferred, Attributes: map[string]string{
		"id":   strconv.FormatUint(id, 10),
		"from": hex.EncodeToString(from[:]),
		"to":   hex.EncodeToString(to[:]),
	}}
}
