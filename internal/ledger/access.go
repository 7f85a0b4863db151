package ledger

import "github.com/erazemk/sledljivost/internal/model"

// AccessControl holds the ledger owner and the manufacturer authorization flags.
type AccessControl struct {
	owner      model.Account
	authorized map[model.Account]bool
}

// NewAccessControl creates the registry with owner as an authorized manufacturer.
func NewAccessControl(owner model.Account) *AccessControl {
	return &AccessControl{
		owner:      owner,
		authorized: map[model.Account]bool{owner: true},
	}
}

// restoreAccessControl rebuilds the registry from persisted flags exactly as stored.
func restoreAccessControl(owner model.Account, flags map[model.Account]bool) *AccessControl {
	a := &AccessControl{owner: owner, authorized: make(map[model.Account]bool, len(flags))}
	for account, ok := range flags {
		a.authorized[account] = ok
	}
	return a
}

// Owner returns the account that created the ledger.
func (a *AccessControl) Owner() model.Account {
	return a.owner
}

// IsAuthorized reports whether account may register products.
func (a *AccessControl) IsAuthorized(account model.Account) bool {
	return a.authorized[account]
}

// SetAuthorization sets the manufacturer flag of target. Only the owner may call it.
func (a *AccessControl) SetAuthorization(caller, target model.Account, authorized bool) (model.ManufacturerAuthorized, error) {
	if err := a.requireOwner(caller); err != nil {
		return model.ManufacturerAuthorized{}, err
	}
	return a.set(target, authorized), nil
}

func (a *AccessControl) requireOwner(caller model.Account) error {
	if caller != a.owner {
		return ErrOnlyOwner
	}
	return nil
}

func (a *AccessControl) set(target model.Account, authorized bool) model.ManufacturerAuthorized {
	a.authorized[target] = authorized
	return model.ManufacturerAuthorized{Manufacturer: target, Authorized: authorized}
}
