package mock

import (
	"context"
	"strings"

	"nutrilog"
)

// Catalog is an in-memory nutrilog.FactSource.
type Catalog struct {
	byCode map[string]nutrilog.NutritionFacts
	byName map[string]nutrilog.NutritionFacts
}

func NewCatalog() *Catalog {
	return &Catalog{
		byCode: make(map[string]nutrilog.NutritionFacts),
		byName: make(map[string]nutrilog.NutritionFacts),
	}
}

func (c *Catalog) AddCode(code string, facts nutrilog.NutritionFacts) *Catalog {
	c.byCode[code] = facts
	return c
}

func (c *Catalog) AddName(name string, facts nutrilog.NutritionFacts) *Catalog {
	c.byName[strings.ToLower(strings.TrimSpace(name))] = facts
	return c
}

func (c *Catalog) LookupByCode(ctx context.Context, code string) (nutrilog.NutritionFacts, bool) {
	f, ok := c.byCode[code]
	return f, ok
}

func (c *Catalog) LookupByName(ctx context.Context, name string) (nutrilog.NutritionFacts, bool) {
	f, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}
