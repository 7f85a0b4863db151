package model

import "strings"

// Account identifies a party on the ledger: a manufacturer, a holder, or the owner.
// Accounts are 0x-prefixed hex addresses and are compared exactly.
type Account string

// NormalizeAccount trims and lower-cases an address so that the same party
// always maps to the same Account.
func NormalizeAccount(s string) Account {
	return Account(strings.ToLower(strings.TrimSpace(s)))
}

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool {
	return a == ""
}

func (a Account) String() string {
	return string(a)
}
