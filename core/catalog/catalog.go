// Package catalog - Authoritative service catalog
// Defines the ordered list of services the workshop offers.
// The catalog is built once and never mutated, so it is safe to share.
package catalog

import (
	"car-edition/core/types"
	"car-edition/internal/errors"
)

// Catalog is the read-only service catalog
type Catalog struct {
	ordered []types.ServiceDefinition
	byID    map[string]int
}

// New builds a catalog from definitions, keeping their order.
// Definitions failing the default validation rules are rejected.
func New(defs []types.ServiceDefinition) (*Catalog, error) {
	c := &Catalog{
		ordered: make([]types.ServiceDefinition, 0, len(defs)),
		byID:    make(map[string]int, len(defs)),
	}

	for _, def := range defs {
		if _, dup := c.byID[def.ID]; dup {
			return nil, errors.Newf(errors.TypeConfig, "duplicate service id: %s", def.ID)
		}
		c.byID[def.ID] = len(c.ordered)
		c.ordered = append(c.ordered, def)
	}

	if errs := c.Validate(DefaultValidationRules()); len(errs) > 0 {
		return nil, errors.Wrap(errors.TypeConfig, "invalid service catalog", errs[0]).
			WithContext("error_count", len(errs))
	}

	return c, nil
}

// MustNew is New for static tables known to be valid
func MustNew(defs []types.ServiceDefinition) *Catalog {
	c, err := New(defs)
	if err != nil {
		panic(err.Error())
	}
	return c
}

// List returns every service in catalog order
func (c *Catalog) List() []types.ServiceDefinition {
	out := make([]types.ServiceDefinition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get returns a service by id
func (c *Catalog) Get(id string) (types.ServiceDefinition, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return types.ServiceDefinition{}, false
	}
	return c.ordered[idx], true
}

// Lookup returns a service or a NOT_FOUND error
func (c *Catalog) Lookup(id string) (types.ServiceDefinition, error) {
	def, ok := c.Get(id)
	if !ok {
		return def, errors.NotFound("service", id)
	}
	return def, nil
}

// ByCategory returns services in one category, in catalog order
func (c *Catalog) ByCategory(category types.ServiceCategory) []types.ServiceDefinition {
	var result []types.ServiceDefinition
	for _, def := range c.ordered {
		if def.Category == category {
			result = append(result, def)
		}
	}
	return result
}

// Len returns the number of services
func (c *Catalog) Len() int {
	return len(c.ordered)
}
