package exchange

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// AccessControl holds the owner and the admin set. The owner is always an
// admin.
type AccessControl struct {
	owner  common.Address
	admins map[common.Address]bool
}

// NewAccessControl returns an admin set containing only owner.
func NewAccessControl(owner common.Address) *AccessControl {
	return &AccessControl{
		owner:  owner,
		admins: map[common.Address]bool{owner: true},
	}
}

// Owner returns the owner address.
func (a *AccessControl) Owner() common.Address { return a.owner }

// IsAdmin reports whether addr is in the admin set.
func (a *AccessControl) IsAdmin(addr common.Address) bool { return a.admins[addr] }

// Admins returns the admin set in address order.
func (a *AccessControl) Admins() []common.Address {
	out := make([]common.Address, 0, len(a.admins))
	for addr, ok := range a.admins {
		if ok {
			out = append(out, addr)
		}
	}
	slices.SortFunc(out, func(x, y common.Address) int { return bytes.Compare(x[:], y[:]) })
	return out
}

func (a *AccessControl) requireOwner(caller common.Address) error {
	if caller != a.owner {
		return domain.PermissionDenied("sender is not owner")
	}
	return nil
}

func (a *AccessControl) requireAdmin(caller common.Address) error {
	if !a.admins[caller] {
		return domain.PermissionDenied("sender is not an admin")
	}
	return nil
}

func (a *AccessControl) set(tx *txn, addr common.Address, v bool) {
	prev, had := a.admins[addr]
	tx.onUndo(func() {
		if had {
			a.admins[addr] = prev
		} else {
			delete(a.admins, addr)
		}
	})
	if v {
		a.admins[addr] = true
	} else {
		delete(a.admins, addr)
	}
	tx.emit(domain.LogEvent{Kind: domain.LogAdmin, Admin: &domain.AdminChange{Account: addr, IsAdmin: v}})
}

func (a *AccessControl) addAdmin(tx *txn, caller, addr common.Address) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return domain.InvalidInput("admin address is zero")
	}
	a.set(tx, addr, true)
	return nil
}

func (a *AccessControl) removeAdmin(tx *txn, caller, addr common.Address) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if addr == a.owner {
		return domain.PermissionDenied("owner cannot be removed from admins")
	}
	a.set(tx, addr, false)
	return nil
}
