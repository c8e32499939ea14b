package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// Position is a stock-book account tracking one instrument.
type Position struct {
	account      Account
	exchangeCode string
	needsRebuild bool
	realizedDate *time.Time
}

// NewPosition builds a Position from its account and the stock book's groups.
// The exchange code comes from the first member group carrying stock_exc_code.
func NewPosition(account Account, groups []Group) (Position, error) {
	if account.ID == "" {
		return Position{}, errors.New("position account ID is required")
	}
	p := Position{account: account}

	byName := make(map[string]Group, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	for _, name := range account.Groups {
		if code := byName[name].Property(valueobject.PropStockExcCode); code != "" {
			p.exchangeCode = code
			break
		}
	}

	p.needsRebuild = account.Property(valueobject.PropNeedsRebuild) != ""
	if raw := account.Property(valueobject.PropRealizedDate, valueobject.PropLegacyRealized); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Position{}, fmt.Errorf("invalid realized date %q on account %s: %w", raw, account.ID, err)
		}
		p.realizedDate = &d
	}
	return p, nil
}

func (p Position) ID() string               { return p.account.ID }
func (p Position) Name() string             { return p.account.Name }
func (p Position) BookID() string           { return p.account.BookID }
func (p Position) ExchangeCode() string     { return p.exchangeCode }
func (p Position) NeedsRebuild() bool       { return p.needsRebuild }
func (p Position) RealizedDate() *time.Time { return p.realizedDate }

// WithRealizedDate returns a copy realized through d.
func (p Position) WithRealizedDate(d *time.Time) Position {
	out := p
	out.realizedDate = d
	return out
}

// WithNeedsRebuild returns a copy with the rebuild flag set or cleared.
func (p Position) WithNeedsRebuild(flag bool) Position {
	out := p
	out.needsRebuild = flag
	return out
}

// Account serializes the position state back onto its ledger account.
func (p Position) Account() Account {
	acc := p.account.WithProperty(valueobject.PropNeedsRebuild, "")
	if p.needsRebuild {
		acc = acc.WithProperty(valueobject.PropNeedsRebuild, "TRUE")
	}
	acc = acc.WithProperty(valueobject.PropLegacyRealized, "")
	if p.realizedDate != nil {
		acc = acc.WithProperty(valueobject.PropRealizedDate, p.realizedDate.Format(time.DateOnly))
	} else {
		acc = acc.WithProperty(valueobject.PropRealizedDate, "")
	}
	return acc
}
