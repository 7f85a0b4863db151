package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/erazemk/sledljivost/internal/model"
)

// Engine is the custody ledger. It owns the access control registry, the
// product registry and the transfer ledger, and applies every change to them
// under a single lock so that no reader observes a half-applied update.
type Engine struct {
	mu        sync.RWMutex
	access    *AccessControl
	products  *ProductRegistry
	transfers *TransferLedger

	store    Store
	clock    Clock
	notifier Notifier
	log      zerolog.Logger

	// lastTime is the latest timestamp handed out; assigned timestamps never go below it.
	lastTime time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the timestamp source. The default is SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier sets the sink for ledger notifications. The default discards them.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the engine's logger. The default discards log output.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func newEngine(store Store, opts []Option) *Engine {
	e := &Engine{
		products:  NewProductRegistry(),
		transfers: NewTransferLedger(),
		store:     store,
		clock:     SystemClock,
		notifier:  NopNotifier{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New creates an in-memory ledger owned by owner.
func New(owner model.Account, opts ...Option) *Engine {
	e := newEngine(memoryStore{}, opts)
	e.access = NewAccessControl(owner)
	return e
}

// Open loads the ledger persisted in store. An empty store is initialized with
// owner; otherwise the persisted owner is kept and owner is only compared
// against it.
func Open(ctx context.Context, store Store, owner model.Account, opts ...Option) (*Engine, error) {
	e := newEngine(store, opts)

	state, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ledger state: %w", err)
	}

	if state == nil || state.Owner.IsZero() {
		if owner.IsZero() {
			return nil, errors.New("an owner account is required to initialize an empty ledger")
		}
		if err := store.InitOwner(ctx, owner); err != nil {
			return nil, fmt.Errorf("initializing ledger owner: %w", err)
		}
		e.access = NewAccessControl(owner)
		e.log.Info().Str("owner", owner.String()).Msg("ledger initialized")
		return e, nil
	}

	if !owner.IsZero() && owner != state.Owner {
		e.log.Warn().
			Str("configured", owner.String()).
			Str("persisted", state.Owner.String()).
			Msg("ledger owner is fixed at creation, ignoring configured owner")
	}

	if err := e.restore(state); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("owner", state.Owner.String()).
		Int("products", e.products.Len()).
		Int("transfers", len(state.Transfers)).
		Msg("ledger loaded")
	return e, nil
}

// restore rebuilds in-memory state from a snapshot and checks that every
// product's holder matches the end of its custody chain.
func (e *Engine) restore(state *State) error {
	e.access = restoreAccessControl(state.Owner, state.Authorizations)

	for _, p := range state.Products {
		e.products.insert(p)
		e.transfers.Open(p.ID)
		e.observe(p.CreatedAt)
	}

	holders := make(map[int64]model.Account, len(state.Products))
	for _, p := range state.Products {
		holders[p.ID] = p.Manufacturer
	}
	for _, t := range state.Transfers {
		holder, ok := holders[t.ProductID]
		if !ok {
			return fmt.Errorf("transfer references unknown product %d", t.ProductID)
		}
		if t.From != holder {
			return fmt.Errorf("product %d: transfer from %s breaks the custody chain at %s", t.ProductID, t.From, holder)
		}
		holders[t.ProductID] = t.To
		e.transfers.Append(t)
		e.observe(t.Timestamp)
	}

	for _, p := range state.Products {
		if holders[p.ID] != p.CurrentHolder {
			return fmt.Errorf("product %d: stored holder %s does not match custody chain %s", p.ID, p.CurrentHolder, holders[p.ID])
		}
	}

	if state.NextProductID > e.products.nextID {
		e.products.nextID = state.NextProductID
	}
	return nil
}

// now returns the timestamp to assign to the next change without recording it.
// Timestamps are in UTC, the form the store persists.
func (e *Engine) now() time.Time {
	t := e.clock.Now().UTC()
	if t.Before(e.lastTime) {
		return e.lastTime
	}
	return t
}

func (e *Engine) observe(t time.Time) {
	if t.After(e.lastTime) {
		e.lastTime = t
	}
}

// RegisterProduct registers a product manufactured and held by caller and
// returns its id.
func (e *Engine) RegisterProduct(ctx context.Context, caller model.Account, in model.ProductInput) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.access.IsAuthorized(caller) {
		return 0, ErrNotAuthorizedManufacturer
	}

	now := e.now()
	p := e.products.draft(caller, in, now)
	if err := e.store.InsertProduct(ctx, p); err != nil {
		return 0, fmt.Errorf("persisting product: %w", err)
	}

	e.products.insert(p)
	e.transfers.Open(p.ID)
	e.observe(now)

	e.log.Debug().Int64("product_id", p.ID).Str("manufacturer", caller.String()).Str("batch", p.BatchNumber).Msg("product registered")
	e.notifier.NotifyProductRegistered(model.ProductRegistered{
		ProductID:    p.ID,
		Manufacturer: caller,
		Name:         p.Name,
		BatchNumber:  p.BatchNumber,
	})
	return p.ID, nil
}

// TransferCustody hands product productID from caller, its current holder, to
// to. Transfers to the caller itself are recorded like any other.
func (e *Engine) TransferCustody(ctx context.Context, caller model.Account, productID int64, to model.Account, location string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.products.Get(productID)
	if !ok {
		return ErrProductNotFound
	}
	if p.CurrentHolder != caller {
		return ErrNotCurrentHolder
	}
	if to.IsZero() {
		return ErrInvalidTransfer
	}

	now := e.now()
	t := model.Transfer{
		ProductID: productID,
		From:      caller,
		To:        to,
		Timestamp: now,
		Location:  location,
		Verified:  true,
	}
	if err := e.store.RecordTransfer(ctx, t); err != nil {
		return fmt.Errorf("persisting transfer: %w", err)
	}

	if err := e.products.SetHolder(productID, to); err != nil {
		// Unreachable: the product was found above under the same lock.
		return err
	}
	e.transfers.Append(t)
	e.observe(now)

	e.log.Debug().Int64("product_id", productID).Str("from", caller.String()).Str("to", to.String()).Msg("custody transferred")
	e.notifier.NotifyCustodyTransferred(model.CustodyTransferred{
		ProductID: productID,
		From:      caller,
		To:        to,
		Location:  location,
	})
	return nil
}

// AuthorizeManufacturer sets whether target may register products. Only the
// owner may call it. Revoking does not affect products already registered.
func (e *Engine) AuthorizeManufacturer(ctx context.Context, caller, target model.Account, authorized bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.access.requireOwner(caller); err != nil {
		return err
	}
	if err := e.store.SetAuthorization(ctx, target, authorized); err != nil {
		return fmt.Errorf("persisting authorization: %w", err)
	}

	ev := e.access.set(target, authorized)

	e.log.Debug().Str("manufacturer", target.String()).Bool("authorized", authorized).Msg("manufacturer authorization changed")
	e.notifier.NotifyManufacturerAuthorized(ev)
	return nil
}

// VerifyProduct returns a copy of the product, or nil if it does not exist.
func (e *Engine) VerifyProduct(productID int64) *model.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.products.Get(productID)
	if !ok {
		return nil
	}
	return &p
}

// VerifyProducts looks up several products at once. Missing ids map to nil.
func (e *Engine) VerifyProducts(ids []int64) map[int64]*model.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[int64]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := e.products.Get(id); ok {
			out[id] = &p
		} else {
			out[id] = nil
		}
	}
	return out
}

// TransferHistory returns the custody transfers of a product, oldest first.
func (e *Engine) TransferHistory(productID int64) []model.Transfer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transfers.History(productID)
}

// IsAuthorizedManufacturer reports whether account may register products.
func (e *Engine) IsAuthorizedManufacturer(account model.Account) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.access.IsAuthorized(account)
}

// Owner returns the ledger owner. It never changes.
func (e *Engine) Owner() model.Account {
	return e.access.Owner()
}

// NextProductID returns the id the next registered product will receive.
func (e *Engine) NextProductID() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.products.NextID()
}

// ProductsByManufacturer returns the ids of products registered by account.
func (e *Engine) ProductsByManufacturer(account model.Account) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.products.ListByManufacturer(account)
}

// ProductsByHolder returns the ids of products account currently holds.
func (e *Engine) ProductsByHolder(account model.Account) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.products.ListByHolder(account)
}

// ProductsByBatch returns the ids of products registered under batch.
func (e *Engine) ProductsByBatch(batch string) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.products.ListByBatch(batch)
}
