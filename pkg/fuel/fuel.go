// Package fuel is the station's fuel grade catalog and price quoting.
package fuel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chris/fuelpay/pkg/money"
)

// ErrUnknownGrade is returned for a fuel type missing from the catalog.
var ErrUnknownGrade = errors.New("unknown fuel type")

// Grade is a fuel product sold by the liter.
type Grade struct {
	ID            string
	Name          string
	PricePerLiter decimal.Decimal
}

// DefaultGrades are the grades sold at every station.
var DefaultGrades = []Grade{
	{ID: "regular", Name: "Regular", PricePerLiter: decimal.RequireFromString("3.45")},
	{ID: "premium", Name: "Premium", PricePerLiter: decimal.RequireFromString("3.95")},
	{ID: "diesel", Name: "Diesel", PricePerLiter: decimal.RequireFromString("3.75")},
}

// Catalog resolves grades by id or display name, case-insensitively.
type Catalog struct {
	grades []Grade
	index  map[string]Grade
}

// NewCatalog builds a catalog from grades.
func NewCatalog(grades []Grade) *Catalog {
	c := &Catalog{grades: grades, index: make(map[string]Grade, len(grades)*2)}
	for _, g := range grades {
		c.index[strings.ToLower(g.ID)] = g
		c.index[strings.ToLower(g.Name)] = g
	}
	return c
}

// DefaultCatalog returns a catalog of DefaultGrades.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultGrades)
}

// Grades lists the catalog in declaration order.
func (c *Catalog) Grades() []Grade {
	out := make([]Grade, len(c.grades))
	copy(out, c.grades)
	return out
}

// Lookup finds a grade by id or name.
func (c *Catalog) Lookup(fuelType string) (Grade, error) {
	g, ok := c.index[strings.ToLower(strings.TrimSpace(fuelType))]
	if !ok {
		return Grade{}, fmt.Errorf("%w: %q", ErrUnknownGrade, fuelType)
	}
	return g, nil
}

// Quote is a priced fuel volume.
type Quote struct {
	Grade  Grade
	Liters decimal.Decimal
	Amount int64
}

// QuoteLiters prices a volume, rounding the amount to the cent.
func (c *Catalog) QuoteLiters(fuelType string, liters decimal.Decimal) (Quote, error) {
	g, err := c.Lookup(fuelType)
	if err != nil {
		return Quote{}, err
	}
	if !liters.IsPositive() {
		return Quote{}, errors.New("liters must be positive")
	}
	liters = liters.Round(2)
	amount, err := money.FromDecimal(liters.Mul(g.PricePerLiter).Round(2))
	if err != nil {
		return Quote{}, err
	}
	return Quote{Grade: g, Liters: liters, Amount: amount}, nil
}

// QuoteAmount finds the volume an amount buys, rounding liters to two places.
func (c *Catalog) QuoteAmount(fuelType string, amount int64) (Quote, error) {
	g, err := c.Lookup(fuelType)
	if err != nil {
		return Quote{}, err
	}
	if amount <= 0 {
		return Quote{}, errors.New("amount must be positive")
	}
	liters := money.ToDecimal(amount).DivRound(g.PricePerLiter, 2)
	return Quote{Grade: g, Liters: liters, Amount: amount}, nil
}

// Consistent reports whether amount matches liters x price within tolerance cents.
func Consistent(amount int64, liters float64, price decimal.Decimal, tolerance int64) bool {
	expected := decimal.NewFromFloat(liters).Mul(price).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	diff := expected - amount
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// CheckConsistent validates amount against the grade price for fuelType.
func (c *Catalog) CheckConsistent(fuelType string, amount int64, liters float64, tolerance int64) error {
	g, err := c.Lookup(fuelType)
	if err != nil {
		return err
	}
	if !Consistent(amount, liters, g.PricePerLiter, tolerance) {
		return fmt.Errorf("amount %s does not match %.2f L of %s at %s/L",
			money.Format(amount), liters, g.Name, g.PricePerLiter.StringFixed(2))
	}
	return nil
}
