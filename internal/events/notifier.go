package events

import (
	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
)

// HubNotifier implements ledger.Notifier by broadcasting to SSE clients.
type HubNotifier struct {
	hub *Hub
}

var _ ledger.Notifier = (*HubNotifier)(nil)

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyProductRegistered(ev model.ProductRegistered) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(EventProductRegistered, productRegisteredEvent(ev))
}

func (n *HubNotifier) NotifyCustodyTransferred(ev model.CustodyTransferred) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(EventCustodyTransferred, custodyTransferredEvent(ev))
}

func (n *HubNotifier) NotifyManufacturerAuthorized(ev model.ManufacturerAuthorized) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(EventManufacturerAuthorized, manufacturerAuthorizedEvent(ev))
}

// Fanout forwards every notification to each of its notifiers in order.
type Fanout []ledger.Notifier

var _ ledger.Notifier = Fanout(nil)

func (f Fanout) NotifyProductRegistered(ev model.ProductRegistered) {
	for _, n := range f {
		n.NotifyProductRegistered(ev)
	}
}

func (f Fanout) NotifyCustodyTransferred(ev model.CustodyTransferred) {
	for _, n := range f {
		n.NotifyCustodyTransferred(ev)
	}
}

func (f Fanout) NotifyManufacturerAuthorized(ev model.ManufacturerAuthorized) {
	for _, n := range f {
		n.NotifyManufacturerAuthorized(ev)
	}
}
