package ledger

import "github.com/erazemk/sledljivost/internal/model"

// Notifier receives ledger notifications after each committed change, in commit
// order. Calls are made while the engine holds its write lock, so
// implementations must return promptly and never call back into the engine.
type Notifier interface {
	NotifyProductRegistered(model.ProductRegistered)
	NotifyCustodyTransferred(model.CustodyTransferred)
	NotifyManufacturerAuthorized(model.ManufacturerAuthorized)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyProductRegistered(model.ProductRegistered)           {}
func (NopNotifier) NotifyCustodyTransferred(model.CustodyTransferred)         {}
func (NopNotifier) NotifyManufacturerAuthorized(model.ManufacturerAuthorized) {}
