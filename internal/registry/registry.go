// Package registry holds the fixed set of edge servers the balancer can
// answer with. A Registry is built once at startup and only read afterwards,
// so it needs no locking.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

var (
	ErrNotIPv4    = errors.New("edge server address is not IPv4")
	ErrNoDomain   = errors.New("edge server has no domain name")
	ErrDuplicate  = errors.New("duplicate edge server address")
	ErrBadLatLong = errors.New("edge server location out of range")
)

type Registry struct {
	servers map[string]model.EdgeServer
	order   []string
}

func New(servers []model.EdgeServer) (*Registry, error) {
	r := &Registry{servers: make(map[string]model.EdgeServer, len(servers))}
	for _, s := range servers {
		ip4 := s.Address.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotIPv4, s.Address)
		}
		s.Address = ip4
		s.Domain = strings.TrimSuffix(strings.TrimSpace(s.Domain), ".")
		if s.Domain == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoDomain, ip4)
		}
		if s.Location.Lat < -90 || s.Location.Lat > 90 || s.Location.Lon < -180 || s.Location.Lon > 180 {
			return nil, fmt.Errorf("%w: %s", ErrBadLatLong, ip4)
		}
		key := s.Key()
		if _, ok := r.servers[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, key)
		}
		r.servers[key] = s
		r.order = append(r.order, key)
	}
	sort.Strings(r.order)
	return r, nil
}

func (r *Registry) Get(addr string) (model.EdgeServer, bool) {
	s, ok := r.servers[addr]
	return s, ok
}

// All returns the edge servers ordered by address.
func (r *Registry) All() []model.EdgeServer {
	out := make([]model.EdgeServer, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.servers[k])
	}
	return out
}

func (r *Registry) Addresses() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	return len(r.order)
}
