package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erazemk/sledljivost/internal/model"
)

func TestTransferLedgerAppendOrder(t *testing.T) {
	l := NewTransferLedger()
	l.Open(1)
	assert.Empty(t, l.History(1))

	l.Append(model.Transfer{ProductID: 1, From: owner, To: holderB, Location: "first"})
	l.Append(model.Transfer{ProductID: 1, From: holderB, To: holderC, Location: "second"})

	history := l.History(1)
	assert.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Location)
	assert.Equal(t, "second", history[1].Location)
}

func TestTransferLedgerAppendWithoutOpen(t *testing.T) {
	l := NewTransferLedger()
	l.Append(model.Transfer{ProductID: 5, From: owner, To: holderB})
	assert.Len(t, l.History(5), 1)
}

func TestTransferLedgerUnknownProduct(t *testing.T) {
	l := NewTransferLedger()
	history := l.History(404)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestTransferLedgerHistoryIsCopy(t *testing.T) {
	l := NewTransferLedger()
	l.Append(model.Transfer{ProductID: 1, Location: "original"})

	history := l.History(1)
	history[0].Location = "changed"
	assert.Equal(t, "original", l.History(1)[0].Location)
}
