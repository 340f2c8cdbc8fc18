package compliance

import (
	"encoding/hex"
	"strconv"

	"deedchain/core/types"
)

const (
	EventTypeAllowlistUpdated  = "compliance.allowlist_updated"
	EventTypeCredentialHashSet = "compliance.credential_hash_set"
	EventTypeUnlockSet         = "compliance.unlock_set"
	EventTypeDocRegistered     = "compliance.doc_registered"
)

// NewAllowlistUpdatedEvent records an allowlist flag change.
func NewAllowlistUpdatedEvent(addr [20]byte, allowed bool) *types.Event {
	return &types.Event{Type: EventTypeAllowlistUpdated, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"allowed": strconv.FormatBool(allowed),
	}}
}

// NewCredentialHashSetEvent records a credential commitment change.
func NewCredentialHashSetEvent(addr [20]byte, hash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeCredentialHashSet, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"hash":    hex.EncodeToString(hash[:]),
	}}
}

// NewUnlockSetEvent records a lockup expiry change.
func NewUnlockSetEvent(propertyID uint64, unlockAt int64) *types.Event {
	return &types.Event{Type: EventTypeUnlockSet, Attributes: map[string]string{
		"id":       strconv.FormatUint(propertyID, 10),
		"unlockAt": strconv.FormatInt(unlockAt, 10),
	}}
}

// NewDocRegisteredEvent records a document digest registration.
func NewDocRegisteredEvent(doc *DocRecord) *types.Event {
	attrs := make(map[string]string)
	if doc != nil {
		attrs["id"] = strconv.FormatUint(doc.PropertyID, 10)
		attrs["docType"] = string(doc.Type)
		attrs["hash"] = hex.EncodeToString(doc.Hash[:])
	}
	return &types.Event{Type: EventTypeDocRegistered, Attributes: attrs}
}
