package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/valueobject"
)

// AccountResolver looks up support accounts and stages the missing ones.
// Accounts and groups are loaded once per book and run.
type AccountResolver struct {
	ledger    port.LedgerClient
	processor *BatchProcessor
	conv      valueobject.Conventions
	onCreate  func(model.Account)

	accounts map[string]map[string]model.Account
	groups   map[string]map[string]model.Group
}

// NewAccountResolver creates a resolver. onCreate is called for every account
// staged for creation and may be nil.
func NewAccountResolver(ledger port.LedgerClient, processor *BatchProcessor, conv valueobject.Conventions, onCreate func(model.Account)) *AccountResolver {
	if onCreate == nil {
		onCreate = func(model.Account) {}
	}
	return &AccountResolver{
		ledger:    ledger,
		processor: processor,
		conv:      conv,
		onCreate:  onCreate,
		accounts:  make(map[string]map[string]model.Account),
		groups:    make(map[string]map[string]model.Group),
	}
}

func (r *AccountResolver) load(ctx context.Context, bookID string) error {
	if _, ok := r.accounts[bookID]; ok {
		return nil
	}
	accounts, err := r.ledger.ListAccounts(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to list accounts of book %s: %w", bookID, err)
	}
	groups, err := r.ledger.ListGroups(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to list groups of book %s: %w", bookID, err)
	}

	byName := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		byName[a.Name] = a
	}
	groupsByName := make(map[string]model.Group, len(groups))
	for _, g := range groups {
		groupsByName[g.Name] = g
	}
	r.accounts[bookID] = byName
	r.groups[bookID] = groupsByName
	return nil
}

// Find returns the named account, including accounts staged in this run.
func (r *AccountResolver) Find(ctx context.Context, bookID, name string) (model.Account, bool, error) {
	if err := r.load(ctx, bookID); err != nil {
		return model.Account{}, false, err
	}
	if acc, ok := r.accounts[bookID][name]; ok {
		return acc, true, nil
	}
	if acc, ok := r.processor.StagedAccount(bookID, name); ok {
		return acc, true, nil
	}
	return model.Account{}, false, nil
}

// Support returns "<instrument> <suffix>", staging it when missing. A new
// account takes the type of existing accounts with the same suffix (else
// fallback) and the groups they all share.
func (r *AccountResolver) Support(ctx context.Context, bookID, instrument, suffix string, fallback model.AccountType) (model.Account, error) {
	name := r.conv.SupportName(instrument, suffix)
	acc, ok, err := r.Find(ctx, bookID, name)
	if err != nil || ok {
		return acc, err
	}
	match := func(n string) bool { return strings.HasSuffix(n, " "+suffix) }
	return r.stage(bookID, name, r.typeOf(bookID, match, fallback), r.sharedGroups(bookID, match)), nil
}

// Unrealized returns the position's unrealized account on the financial book.
func (r *AccountResolver) Unrealized(ctx context.Context, financial model.Book, instrument string, hist bool) (model.Account, error) {
	suffix := r.conv.UnrealizedSuffix
	if hist {
		suffix = r.conv.UnrealizedHistSuffix
	}
	return r.Support(ctx, financial.ID, instrument, suffix, model.AccountLiability)
}

// UnrealizedFX returns the position's unrealized FX account on the base book.
func (r *AccountResolver) UnrealizedFX(ctx context.Context, base model.Book, instrument string, hist bool) (model.Account, error) {
	var suffix string
	switch {
	case base.ExcAggregate() && hist:
		suffix = r.conv.UnrealizedHistSuffix
	case base.ExcAggregate():
		suffix = r.conv.UnrealizedSuffix
	case hist:
		suffix = r.conv.UnrealizedHistExcSuffix
	default:
		suffix = r.conv.UnrealizedExcSuffix
	}
	return r.Support(ctx, base.ID, instrument, suffix, model.AccountLiability)
}

// Realized returns the position's realized account, preferring a legacy
// "<name> Realized Gain|Loss" account for fair results.
func (r *AccountResolver) Realized(ctx context.Context, financial model.Book, instrument string, hist, gain bool) (model.Account, error) {
	if !hist {
		legacy := r.conv.LegacyRealizedLoss
		if gain {
			legacy = r.conv.LegacyRealizedGain
		}
		acc, ok, err := r.Find(ctx, financial.ID, r.conv.SupportName(instrument, legacy))
		if err != nil || ok {
			return acc, err
		}
	}
	suffix := r.conv.RealizedSuffix
	if hist {
		suffix = r.conv.RealizedHistSuffix
	}
	return r.Support(ctx, financial.ID, instrument, suffix, model.AccountIncoming)
}

// RealizedFX resolves the realized FX account paired with unrealizedFX: an
// exc_account property on the account or one of its groups, the aggregated
// Exchange_<code> account, or the unrealized name with Realized swapped in.
func (r *AccountResolver) RealizedFX(ctx context.Context, base model.Book, unrealizedFX model.Account, excCode string, hist bool) (model.Account, error) {
	if err := r.load(ctx, base.ID); err != nil {
		return model.Account{}, err
	}
	name := r.realizedFXName(base, unrealizedFX, excCode, hist)
	acc, ok, err := r.Find(ctx, base.ID, name)
	if err != nil || ok {
		return acc, err
	}

	var groups []string
	switch {
	case strings.HasPrefix(name, r.conv.ExchangeAccountPrefix):
		groups = r.sharedGroups(base.ID, func(n string) bool { return r.conv.IsExchangeAccount(n, hist) })
	case strings.HasSuffix(name, " "+r.conv.RealizedExcSuffix):
		groups = r.sharedGroups(base.ID, func(n string) bool { return strings.HasSuffix(n, " "+r.conv.RealizedExcSuffix) })
	case strings.HasSuffix(name, " "+r.conv.RealizedHistExcSuffix):
		groups = r.sharedGroups(base.ID, func(n string) bool { return strings.HasSuffix(n, " "+r.conv.RealizedHistExcSuffix) })
	}
	typ := r.typeOf(base.ID, func(n string) bool {
		return strings.HasPrefix(n, r.conv.ExchangeAccountPrefix) || strings.HasSuffix(n, " "+r.conv.RealizedExcSuffix)
	}, model.AccountIncoming)
	return r.stage(base.ID, name, typ, groups), nil
}

func (r *AccountResolver) realizedFXName(base model.Book, unrealizedFX model.Account, excCode string, hist bool) string {
	if name := unrealizedFX.Property(valueobject.PropExcAccount); name != "" {
		return name
	}
	for _, g := range unrealizedFX.Groups {
		if name := r.groups[base.ID][g].Property(valueobject.PropExcAccount); name != "" {
			return name
		}
	}
	if base.ExcAggregate() {
		return r.conv.ExchangeAccountName(excCode, hist)
	}
	return r.conv.RealizedFromUnrealized(unrealizedFX.Name)
}

func (r *AccountResolver) stage(bookID, name string, typ model.AccountType, groups []string) model.Account {
	acc := r.processor.StageAccount(model.Account{BookID: bookID, Name: name, Type: typ, Groups: groups})
	r.onCreate(acc)
	return acc
}

func (r *AccountResolver) typeOf(bookID string, match func(string) bool, fallback model.AccountType) model.AccountType {
	for _, name := range r.sortedNames(bookID) {
		if match(name) {
			return r.accounts[bookID][name].Type
		}
	}
	return fallback
}

// sharedGroups returns the groups every matching account belongs to.
func (r *AccountResolver) sharedGroups(bookID string, match func(string) bool) []string {
	var shared []string
	first := true
	for _, name := range r.sortedNames(bookID) {
		if !match(name) {
			continue
		}
		acc := r.accounts[bookID][name]
		if first {
			shared = slices.Clone(acc.Groups)
			first = false
			continue
		}
		shared = slices.DeleteFunc(shared, func(g string) bool { return !acc.InGroup(g) })
	}
	slices.Sort(shared)
	return shared
}

func (r *AccountResolver) sortedNames(bookID string) []string {
	names := make([]string, 0, len(r.accounts[bookID]))
	for name := range r.accounts[bookID] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
