package model

import "time"

// Product is one registered batch of physical goods.
type Product struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	BatchNumber      string    `json:"batch_number"`
	Manufacturer     Account   `json:"manufacturer"`
	ManufacturerName string    `json:"manufacturer_name"`
	Quantity         uint32    `json:"quantity"`
	MfgDate          time.Time `json:"mfg_date"`
	ExpiryDate       time.Time `json:"expiry_date"`
	Category         string    `json:"category"`
	CurrentHolder    Account   `json:"current_holder"`
	IsAuthentic      bool      `json:"is_authentic"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProductInput holds the caller-supplied fields of a product registration.
type ProductInput struct {
	Name             string
	BatchNumber      string
	ManufacturerName string
	Quantity         uint32
	MfgDate          time.Time
	ExpiryDate       time.Time
	Category         string
}
