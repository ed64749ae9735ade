// Package domain defines the identifier types shared across the donation
// lifecycle. Keeping them here lets stores, services and transport agree on
// the same types without importing each other.
package domain

import "strconv"

// AccountID identifies a ledger account. It is the bound identity used for
// authorization decisions: sponsor, beneficiary and merchant accounts are all
// AccountIDs. Free-text labels (approver, merchant) are never AccountIDs.
type AccountID string

// IsZero reports whether the account identity is unset.
func (a AccountID) IsZero() bool {
	return a == ""
}

func (a AccountID) String() string {
	return string(a)
}

// DonationID is a sequential donation identifier. IDs are assigned by the
// donation store in strictly increasing order starting at zero and are never
// reused.
type DonationID uint64

func (d DonationID) String() string {
	return strconv.FormatUint(uint64(d), 10)
}

// ParseDonationID parses the decimal string form used in URLs.
func ParseDonationID(s string) (DonationID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return DonationID(v), nil
}
