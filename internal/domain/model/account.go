package model

import (
	"fmt"
	"maps"
)

// AccountType classifies ledger accounts.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountIncoming  AccountType = "INCOMING"
	AccountOutgoing  AccountType = "OUTGOING"
)

// ParseAccountType validates a stored account type.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountAsset, AccountLiability, AccountIncoming, AccountOutgoing:
		return t, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// Account is a ledger account. Groups holds group names.
type Account struct {
	ID         string
	BookID     string
	Name       string
	Type       AccountType
	Groups     []string
	Properties map[string]string
	Archived   bool
}

// Property returns the first non-blank value among keys.
func (a Account) Property(keys ...string) string {
	return lookup(a.Properties, keys...)
}

// WithProperty returns a copy with key set, or removed when value is empty.
func (a Account) WithProperty(key, value string) Account {
	out := a
	out.Properties = maps.Clone(a.Properties)
	if out.Properties == nil {
		out.Properties = map[string]string{}
	}
	if value == "" {
		delete(out.Properties, key)
	} else {
		out.Properties[key] = value
	}
	return out
}

// InGroup reports membership by group name.
func (a Account) InGroup(name string) bool {
	for _, g := range a.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// Group is a named set of accounts.
type Group struct {
	ID         string
	BookID     string
	Name       string
	Properties map[string]string
}

// Property returns the first non-blank value among keys.
func (g Group) Property(keys ...string) string {
	return lookup(g.Properties, keys...)
}
