// Package category defines the fixed set of corpus partitions. Every store
// table name comes from this enumeration; request input is only ever parsed
// into a Category, never spliced into SQL.
package category

import (
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
)

type Category uint8

const (
	Contracts Category = iota + 1
	Policies
	Standards
	Records
)

// Alphabetical by name; All and the cross-partition search rely on it.
var all = []Category{Contracts, Policies, Records, Standards}

var names = map[Category]string{
	Contracts: "contracts",
	Policies:  "policies",
	Standards: "standards",
	Records:   "records",
}

// All returns every category in canonical order.
func All() []Category {
	return slices.Clone(all)
}

// Parse maps a user-supplied name onto a Category.
func Parse(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range names {
		if name == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	_, ok := names[c]
	return ok
}

func (c Category) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Table is the store partition holding this category's pages.
func (c Category) Table() string {
	return "pages_" + names[c]
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrUnknownCategory, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
