package model

// ProductRegistered is emitted after a product is registered.
type ProductRegistered struct {
	ProductID    int64
	Manufacturer Account
	Name         string
	BatchNumber  string
}

// CustodyTransferred is emitted after a custody transfer commits.
type CustodyTransferred struct {
	ProductID int64
	From      Account
	To        Account
	Location  string
}

// ManufacturerAuthorized is emitted whenever the owner sets an authorization flag,
// including when the flag already had that value.
type ManufacturerAuthorized struct {
	Manufacturer Account
	Authorized   bool
}
