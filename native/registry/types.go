package registry

import (
	"fmt"
	"strings"
)

// Deed is a unique property token. Approved names at most one operator
// entitled to transfer the deed on the owner's behalf; it clears on every
// transfer.
type Deed struct {
	ID       uint64   `json:"id"`
	Owner    [20]byte `json:"owner"`
	Approved [20]byte `json:"approved"`
	URI      string   `json:"uri"`
	MintedAt int64    `json:"mintedAt"`
}

// Clone returns a copy of the deed record.
func (d *Deed) Clone() *Deed {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// SanitizeDeed validates a deed record and returns a clone.
func SanitizeDeed(d *Deed) (*Deed, error) {
	if d == nil {
		return nil, fmt.Errorf("nil deed")
	}
	if d.Owner == ([20]byte{}) {
		return nil, fmt.Errorf("deed %d has no owner", d.ID)
	}
	clone := d.Clone()
	clone.URI = strings.TrimSpace(clone.URI)
	return clone, nil
}
