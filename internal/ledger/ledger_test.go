package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erazemk/sledljivost/internal/model"
)

const (
	owner   = model.Account("0x00000000000000000000000000000000000000a1")
	holderB = model.Account("0x00000000000000000000000000000000000000b2")
	holderC = model.Account("0x00000000000000000000000000000000000000c3")
)

var errStoreDown = errors.New("store unavailable")

// stepClock returns t0, t0+step, t0+2*step, ...
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{next: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// recorder collects notifications in the order they arrive.
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) NotifyProductRegistered(ev model.ProductRegistered) { r.add(ev) }

func (r *recorder) NotifyCustodyTransferred(ev model.CustodyTransferred) { r.add(ev) }

func (r *recorder) NotifyManufacturerAuthorized(ev model.ManufacturerAuthorized) { r.add(ev) }

func (r *recorder) add(ev any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

// failingStore rejects every write.
type failingStore struct {
	memoryStore
}

func (failingStore) InsertProduct(context.Context, model.Product) error   { return errStoreDown }
func (failingStore) RecordTransfer(context.Context, model.Transfer) error { return errStoreDown }
func (failingStore) SetAuthorization(context.Context, model.Account, bool) error {
	return errStoreDown
}

// snapshotStore serves a fixed state and records writes.
type snapshotStore struct {
	memoryStore
	state     *State
	initOwner model.Account
}

func (s *snapshotStore) LoadState(context.Context) (*State, error) { return s.state, nil }

func (s *snapshotStore) InitOwner(_ context.Context, owner model.Account) error {
	s.initOwner = owner
	return nil
}

func amoxicillin() model.ProductInput {
	return model.ProductInput{
		Name:             "Amoxicillin 500mg",
		BatchNumber:      "BATCH-001",
		ManufacturerName: "Test Pharma Ltd",
		Quantity:         10000,
		MfgDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Category:         "Antibiotic",
	}
}
