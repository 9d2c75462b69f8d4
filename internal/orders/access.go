package orders

import "strings"

const RoleAdmin = "ADMIN"

func IsAdmin(p Principal) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles() {
		if strings.EqualFold(r, RoleAdmin) {
			return true
		}
	}
	return false
}

// Authorize lets the buyer and admins see or act on an order.
func Authorize(p Principal, o *Order) error {
	if o == nil {
		return ErrNotOwner
	}
	return AuthorizeOwner(p, o.UserID)
}

func AuthorizeOwner(p Principal, ownerID int64) error {
	switch {
	case p == nil:
		return ErrNoPrincipal
	case IsAdmin(p), p.UserID() == ownerID:
		return nil
	default:
		return ErrNotOwner
	}
}

func RequireAdmin(p Principal) error {
	if p == nil {
		return ErrNoPrincipal
	}
	if !IsAdmin(p) {
		return ErrAdminOnly
	}
	return nil
}
