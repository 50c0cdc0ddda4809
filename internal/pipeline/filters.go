package pipeline

import (
	"fmt"

	"github.com/vbwagner/client-code/internal/types"
)

// Filters holds the mutually exclusive skip and only step-name sets.
// Unknown names are accepted and simply match nothing.
type Filters struct {
	skip map[string]struct{}
	only map[string]struct{}
}

// NewFilters builds a Filters from the configured name lists. Supplying
// both non-empty lists is a configuration error and must be rejected
// before any lock is taken.
func NewFilters(skip, only []string) (Filters, error) {
	if len(skip) > 0 && len(only) > 0 {
		return Filters{}, fmt.Errorf("skip and only step sets are mutually exclusive")
	}
	f := Filters{}
	if len(skip) > 0 {
		f.skip = make(map[string]struct{}, len(skip))
		for _, s := range skip {
			f.skip[s] = struct{}{}
		}
	}
	if len(only) > 0 {
		f.only = make(map[string]struct{}, len(only))
		for _, s := range only {
			f.only[s] = struct{}{}
		}
	}
	return f, nil
}

// Allows reports whether the named stage passes the filters: not present
// in skip, and present in only when only is non-empty.
func (f Filters) Allows(name types.Stage) bool {
	if _, skipped := f.skip[string(name)]; skipped {
		return false
	}
	if len(f.only) > 0 {
		_, ok := f.only[string(name)]
		return ok
	}
	return true
}
