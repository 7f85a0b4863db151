package ledger

import (
	"slices"
	"time"

	"github.com/erazemk/sledljivost/internal/model"
)

// ProductRegistry stores products by id and keeps secondary indexes by
// manufacturer, holder and batch number. Ids start at 1 and are never reused.
type ProductRegistry struct {
	products       map[int64]*model.Product
	nextID         int64
	byManufacturer map[model.Account][]int64
	byHolder       map[model.Account]map[int64]struct{}
	byBatch        map[string][]int64
}

// NewProductRegistry returns an empty registry.
func NewProductRegistry() *ProductRegistry {
	return &ProductRegistry{
		products:       make(map[int64]*model.Product),
		nextID:         1,
		byManufacturer: make(map[model.Account][]int64),
		byHolder:       make(map[model.Account]map[int64]struct{}),
		byBatch:        make(map[string][]int64),
	}
}

// Register stores a new product held by its manufacturer and returns it.
// Authorization is the caller's concern.
func (r *ProductRegistry) Register(manufacturer model.Account, in model.ProductInput, now time.Time) model.Product {
	p := r.draft(manufacturer, in, now)
	r.insert(p)
	return p
}

// draft builds the record the next Register would store without changing the registry.
func (r *ProductRegistry) draft(manufacturer model.Account, in model.ProductInput, now time.Time) model.Product {
	return model.Product{
		ID:               r.nextID,
		Name:             in.Name,
		BatchNumber:      in.BatchNumber,
		Manufacturer:     manufacturer,
		ManufacturerName: in.ManufacturerName,
		Quantity:         in.Quantity,
		MfgDate:          in.MfgDate.UTC(),
		ExpiryDate:       in.ExpiryDate.UTC(),
		Category:         in.Category,
		CurrentHolder:    manufacturer,
		IsAuthentic:      true,
		CreatedAt:        now,
	}
}

// insert adds p to the registry and its indexes. Products arrive in id order.
func (r *ProductRegistry) insert(p model.Product) {
	stored := p
	r.products[p.ID] = &stored
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
	r.byManufacturer[p.Manufacturer] = append(r.byManufacturer[p.Manufacturer], p.ID)
	r.byBatch[p.BatchNumber] = append(r.byBatch[p.BatchNumber], p.ID)
	r.addHolder(p.CurrentHolder, p.ID)
}

// Get returns a copy of the product with the given id.
func (r *ProductRegistry) Get(id int64) (model.Product, bool) {
	p, ok := r.products[id]
	if !ok {
		return model.Product{}, false
	}
	return *p, true
}

// SetHolder changes the current holder of a product.
func (r *ProductRegistry) SetHolder(id int64, holder model.Account) error {
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	r.removeHolder(p.CurrentHolder, id)
	p.CurrentHolder = holder
	r.addHolder(holder, id)
	return nil
}

// NextID returns the id the next registration will receive.
func (r *ProductRegistry) NextID() int64 {
	return r.nextID
}

// Len returns the number of registered products.
func (r *ProductRegistry) Len() int {
	return len(r.products)
}

// ListByManufacturer returns the ids registered by account in ascending order.
func (r *ProductRegistry) ListByManufacturer(account model.Account) []int64 {
	return cloneIDs(r.byManufacturer[account])
}

// ListByBatch returns the ids registered under a batch number in ascending order.
func (r *ProductRegistry) ListByBatch(batch string) []int64 {
	return cloneIDs(r.byBatch[batch])
}

// ListByHolder returns the ids currently held by account in ascending order.
func (r *ProductRegistry) ListByHolder(account model.Account) []int64 {
	held := r.byHolder[account]
	ids := make([]int64, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *ProductRegistry) addHolder(holder model.Account, id int64) {
	held, ok := r.byHolder[holder]
	if !ok {
		held = make(map[int64]struct{})
		r.byHolder[holder] = held
	}
	held[id] = struct{}{}
}

func (r *ProductRegistry) removeHolder(holder model.Account, id int64) {
	held := r.byHolder[holder]
	delete(held, id)
	if len(held) == 0 {
		delete(r.byHolder, holder)
	}
}

func cloneIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
