package compliance

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Record holds the per-account compliance facts the escrow engine gates on.
// A zero credential hash means no completed KYC check is on file.
type Record struct {
	Allowlisted    bool     `json:"allowlisted"`
	CredentialHash [32]byte `json:"credentialHash"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return &Record{}
	}
	clone := *r
	return &clone
}

// HasCredential reports whether a credential hash is set.
func (r *Record) HasCredential() bool {
	return r != nil && r.CredentialHash != ([32]byte{})
}

// DocType classifies entries in the document-hash registry.
type DocType string

const (
	DocTypeDeed             DocType = "deed"
	DocTypeInspectionReport DocType = "inspection_report"
	DocTypeDisclosure       DocType = "disclosure"
)

// NormalizeDocType canonicalises and validates a document type label.
func NormalizeDocType(label string) (DocType, error) {
	switch DocType(strings.ToLower(strings.TrimSpace(label))) {
	case DocTypeDeed:
		return DocTypeDeed, nil
	case DocTypeInspectionReport:
		return DocTypeInspectionReport, nil
	case DocTypeDisclosure:
		return DocTypeDisclosure, nil
	default:
		return "", fmt.Errorf("compliance: unrecognized document type %q", label)
	}
}

// DocRecord is one entry in the document-hash registry. It is a record-keeping
// side channel only and gates no transition.
type DocRecord struct {
	PropertyID   uint64   `json:"propertyId"`
	Type         DocType  `json:"type"`
	Hash         [32]byte `json:"hash"`
	RegisteredAt int64    `json:"registeredAt"`
}

// Clone returns a copy of the document record.
func (d *DocRecord) Clone() *DocRecord {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// DocDigest computes the canonical keccak256 digest stored for a document.
func DocDigest(data []byte) [32]byte {
	return [32]byte(ethcrypto.Keccak256Hash(data))
}

// CredentialDigest derives the stored credential commitment from an opaque
// attestation payload.
func CredentialDigest(attestation []byte) [32]byte {
	return [32]byte(ethcrypto.Keccak256Hash(attestation))
}
