package musickit

import (
	"github.com/patrickmn/go-cache"
)

const storefrontKey = "storefront_country_code"

// storefront holds the cached storefront country code. go-cache guards the
// value with its own lock; the last writer wins.
type storefront struct {
	cell *cache.Cache
}

func newStorefront(initial string) *storefront {
	s := &storefront{cell: cache.New(cache.NoExpiration, 0)}
	s.set(initial)
	return s
}

func (s *storefront) get() string {
	if v, found := s.cell.Get(storefrontKey); found {
		if code, ok := v.(string); ok {
			return code
		}
	}
	return DefaultStorefrontCountryCode
}

func (s *storefront) set(code string) {
	s.cell.Set(storefrontKey, code, cache.NoExpiration)
}
