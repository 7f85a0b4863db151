package ledger

import (
	"context"

	"github.com/erazemk/sledljivost/internal/model"
)

// Store persists ledger state. Every method must be atomic: either all of its
// writes are durable or none are.
type Store interface {
	// LoadState returns the persisted state, or nil if the store is empty.
	LoadState(ctx context.Context) (*State, error)
	// InitOwner records the owner and grants it the manufacturer flag.
	InitOwner(ctx context.Context, owner model.Account) error
	// InsertProduct stores a new product and advances the id counter past it.
	InsertProduct(ctx context.Context, p model.Product) error
	// RecordTransfer sets the product's holder to t.To and appends t.
	RecordTransfer(ctx context.Context, t model.Transfer) error
	// SetAuthorization writes one manufacturer flag.
	SetAuthorization(ctx context.Context, account model.Account, authorized bool) error
}

// State is a full snapshot of persisted ledger data.
type State struct {
	Owner          model.Account
	Authorizations map[model.Account]bool
	NextProductID  int64
	// Products in ascending id order.
	Products []model.Product
	// Transfers in commit order.
	Transfers []model.Transfer
}

// memoryStore keeps nothing; the engine's own maps are the only copy.
type memoryStore struct{}

func (memoryStore) LoadState(context.Context) (*State, error)                   { return nil, nil }
func (memoryStore) InitOwner(context.Context, model.Account) error              { return nil }
func (memoryStore) InsertProduct(context.Context, model.Product) error          { return nil }
func (memoryStore) RecordTransfer(context.Context, model.Transfer) error        { return nil }
func (memoryStore) SetAuthorization(context.Context, model.Account, bool) error { return nil }
