package events

import (
	"time"

	"github.com/erazemk/sledljivost/internal/model"
)

// Every wire event wraps the notification fields in an envelope: Event names
// the kind and Timestamp is when the sink encoded it, not the commit time.

// EventType is the name a notification is published under.
type EventType string

const (
	EventProductRegistered      EventType = "product.registered"
	EventCustodyTransferred     EventType = "custody.transferred"
	EventManufacturerAuthorized EventType = "manufacturer.authorized"
)

// ProductRegisteredEvent is the wire form of model.ProductRegistered.
type ProductRegisteredEvent struct {
	Event        EventType     `json:"event"`
	ProductID    int64         `json:"product_id"`
	Manufacturer model.Account `json:"manufacturer"`
	Name         string        `json:"name"`
	BatchNumber  string        `json:"batch_number"`
	Timestamp    time.Time     `json:"timestamp"`
}

// CustodyTransferredEvent is the wire form of model.CustodyTransferred.
type CustodyTransferredEvent struct {
	Event     EventType     `json:"event"`
	ProductID int64         `json:"product_id"`
	From      model.Account `json:"from"`
	To        model.Account `json:"to"`
	Location  string        `json:"location"`
	Timestamp time.Time     `json:"timestamp"`
}

// ManufacturerAuthorizedEvent is the wire form of model.ManufacturerAuthorized.
type ManufacturerAuthorizedEvent struct {
	Event        EventType     `json:"event"`
	Manufacturer model.Account `json:"manufacturer"`
	Authorized   bool          `json:"authorized"`
	Timestamp    time.Time     `json:"timestamp"`
}

func productRegisteredEvent(n model.ProductRegistered) *ProductRegisteredEvent {
	return &ProductRegisteredEvent{
		Event:        EventProductRegistered,
		ProductID:    n.ProductID,
		Manufacturer: n.Manufacturer,
		Name:         n.Name,
		BatchNumber:  n.BatchNumber,
		Timestamp:    time.Now().UTC(),
	}
}

func custodyTransferredEvent(n model.CustodyTransferred) *CustodyTransferredEvent {
	return &CustodyTransferredEvent{
		Event:     EventCustodyTransferred,
		ProductID: n.ProductID,
		From:      n.From,
		To:        n.To,
		Location:  n.Location,
		Timestamp: time.Now().UTC(),
	}
}

func manufacturerAuthorizedEvent(n model.ManufacturerAuthorized) *ManufacturerAuthorizedEvent {
	return &ManufacturerAuthorizedEvent{
		Event:        EventManufacturerAuthorized,
		Manufacturer: n.Manufacturer,
		Authorized:   n.Authorized,
		Timestamp:    time.Now().UTC(),
	}
}
