package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// headerPrincipal is the caller as asserted by the authenticating proxy in
// front of the service.
type headerPrincipal struct {
	id    int64
	email string
	roles []string
}

func (p headerPrincipal) UserID() int64   { return p.id }
func (p headerPrincipal) Email() string   { return p.email }
func (p headerPrincipal) Roles() []string { return p.roles }

func principalFrom(r *http.Request) (orders.Principal, error) {
	// X-User-Id is set only by the proxy; 0 and garbage both mean anonymous.
	id, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, orders.ErrNoPrincipal
	}
	var roles []string
	for _, s := range strings.Split(r.Header.Get("X-User-Roles"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			roles = append(roles, strings.ToUpper(s))
		}
	}
	return headerPrincipal{id: id, email: r.Header.Get("X-User-Email"), roles: roles}, nil
}

func callerAndID(r *http.Request) (orders.Principal, int64, error) {
	p, err := principalFrom(r)
	if err != nil {
		return nil, 0, err
	}
	id, err := idParam(r)
	if err != nil {
		return nil, 0, err
	}
	return p, id, nil
}
