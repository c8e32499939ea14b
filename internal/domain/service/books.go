package service

import "github.com/bibbank/realizer/internal/domain/model"

// Books are the three ledgers one run writes to. Base equals Financial when
// the collection has no separate reporting book.
type Books struct {
	Stock     model.Book
	Financial model.Book
	Base      model.Book
}

// HasSeparateBase reports whether base-currency conversions are recorded.
func (b Books) HasSeparateBase() bool { return b.Base.ID != b.Financial.ID }

// ResolveBooks picks the financial book trading in excCode and the base book
// among the stock book's collection. The base book is the one flagged
// exc_base, else the one trading in baseCode, else the financial book. It
// reports false when no financial book matches.
func ResolveBooks(stock model.Book, collection []model.Book, excCode, baseCode string) (Books, bool) {
	books := Books{Stock: stock}
	if excCode == "" {
		return books, false
	}

	found := false
	for _, b := range collection {
		if b.ID != stock.ID && b.ExchangeCode() == excCode {
			books.Financial = b
			found = true
			break
		}
	}
	if !found {
		return books, false
	}

	books.Base = books.Financial
	if base, ok := baseBook(stock, collection, baseCode); ok {
		books.Base = base
	}
	return books, true
}

func baseBook(stock model.Book, collection []model.Book, baseCode string) (model.Book, bool) {
	for _, b := range collection {
		if b.ID != stock.ID && b.IsBase() {
			return b, true
		}
	}
	for _, b := range collection {
		if baseCode != "" && b.ID != stock.ID && b.ExchangeCode() == baseCode {
			return b, true
		}
	}
	return model.Book{}, false
}
