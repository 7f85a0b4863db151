package ledger

import "github.com/erazemk/sledljivost/internal/model"

// TransferLedger keeps the append-only custody history of every product.
type TransferLedger struct {
	entries map[int64][]model.Transfer
}

// NewTransferLedger returns an empty ledger.
func NewTransferLedger() *TransferLedger {
	return &TransferLedger{entries: make(map[int64][]model.Transfer)}
}

// Open creates an empty history for productID if it has none.
func (l *TransferLedger) Open(productID int64) {
	if _, ok := l.entries[productID]; !ok {
		l.entries[productID] = []model.Transfer{}
	}
}

// Append adds t to the end of its product's history.
func (l *TransferLedger) Append(t model.Transfer) {
	l.entries[t.ProductID] = append(l.entries[t.ProductID], t)
}

// History returns the transfers of productID in the order they were appended.
// Unknown products yield an empty slice.
func (l *TransferLedger) History(productID int64) []model.Transfer {
	entries := l.entries[productID]
	out := make([]model.Transfer, len(entries))
	copy(out, entries)
	return out
}
