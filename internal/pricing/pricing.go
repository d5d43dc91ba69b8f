// Package pricing computes the cost of gallery selections beyond the
// included photo quota.
//
// A billing configuration is a tagged variant: each mode carries exactly the
// fields it needs and is validated once, when the plan is built. Prices are
// integer minor currency units.
package pricing

import (
	"errors"
	"fmt"
)

// Mode is the extra-photo billing mode configured on a project.
type Mode string

const (
	ModeIndividual Mode = "individual"
	ModePackages   Mode = "packages"
	ModeBoth       Mode = "both"
)

// ErrInvalidPlan is returned when a billing configuration is inconsistent
// with its mode.
var ErrInvalidPlan = errors.New("invalid extra photo billing configuration")

// Plan is one of IndividualPlan, PackagePlan or DualPlan.
type Plan interface {
	Mode() Mode
	Quote(selected, included int) Quote
}

// IndividualPlan bills every extra photo at a unit price.
type IndividualPlan struct {
	UnitPrice int64
}

// PackagePlan bills extra photos in whole packages only.
type PackagePlan struct {
	Size  int
	Price int64
}

// DualPlan exposes both quotes and lets the client choose per purchase.
type DualPlan struct {
	Individual IndividualPlan
	Package    PackagePlan
}

// Quote is the priced overage for a selection count.
type Quote struct {
	Mode     Mode `json:"mode"`
	Selected int  `json:"selected"`
	Included int  `json:"included"`
	Overage  int  `json:"overage"`

	// IndividualCost is set for individual and both plans.
	IndividualCost *int64 `json:"individual_cost,omitempty"`

	// PackagesNeeded and PackageCost are set for packages and both plans.
	PackagesNeeded *int   `json:"packages_needed,omitempty"`
	PackageCost    *int64 `json:"package_cost,omitempty"`
}

// NewPlan validates a stored configuration and returns the matching variant.
// Fields that the mode does not use are ignored.
func NewPlan(mode Mode, unitPrice *int64, packageSize *int, packagePrice *int64) (Plan, error) {
	switch mode {
	case ModeIndividual:
		ip, err := newIndividual(unitPrice)
		if err != nil {
			return nil, err
		}
		return ip, nil
	case ModePackages:
		pp, err := newPackage(packageSize, packagePrice)
		if err != nil {
			return nil, err
		}
		return pp, nil
	case ModeBoth:
		ip, err := newIndividual(unitPrice)
		if err != nil {
			return nil, err
		}
		pp, err := newPackage(packageSize, packagePrice)
		if err != nil {
			return nil, err
		}
		return DualPlan{Individual: ip, Package: pp}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidPlan, mode)
	}
}

func newIndividual(unitPrice *int64) (IndividualPlan, error) {
	if unitPrice == nil {
		return IndividualPlan{}, fmt.Errorf("%w: unit price is required", ErrInvalidPlan)
	}
	if *unitPrice < 0 {
		return IndividualPlan{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidPlan)
	}
	return IndividualPlan{UnitPrice: *unitPrice}, nil
}

func newPackage(size *int, price *int64) (PackagePlan, error) {
	if size == nil || *size < 1 {
		return PackagePlan{}, fmt.Errorf("%w: package size must be at least 1", ErrInvalidPlan)
	}
	if price == nil {
		return PackagePlan{}, fmt.Errorf("%w: package price is required", ErrInvalidPlan)
	}
	if *price < 0 {
		return PackagePlan{}, fmt.Errorf("%w: package price must not be negative", ErrInvalidPlan)
	}
	return PackagePlan{Size: *size, Price: *price}, nil
}

// Overage is the number of selections beyond the included quota.
func Overage(selected, included int) int {
	if included < 0 {
		included = 0
	}
	if selected <= included {
		return 0
	}
	return selected - included
}

func (IndividualPlan) Mode() Mode { return ModeIndividual }

func (p IndividualPlan) Quote(selected, included int) Quote {
	q := baseQuote(ModeIndividual, selected, included)
	cost := p.cost(q.Overage)
	q.IndividualCost = &cost
	return q
}

func (p IndividualPlan) cost(overage int) int64 {
	return int64(overage) * p.UnitPrice
}

func (PackagePlan) Mode() Mode { return ModePackages }

func (p PackagePlan) Quote(selected, included int) Quote {
	q := baseQuote(ModePackages, selected, included)
	n, cost := p.cost(q.Overage)
	q.PackagesNeeded = &n
	q.PackageCost = &cost
	return q
}

// cost rounds up to whole packages; partial packages are never sold.
func (p PackagePlan) cost(overage int) (int, int64) {
	if overage == 0 {
		return 0, 0
	}
	n := (overage + p.Size - 1) / p.Size
	return n, int64(n) * p.Price
}

func (DualPlan) Mode() Mode { return ModeBoth }

func (p DualPlan) Quote(selected, included int) Quote {
	q := baseQuote(ModeBoth, selected, included)
	ic := p.Individual.cost(q.Overage)
	n, pc := p.Package.cost(q.Overage)
	q.IndividualCost = &ic
	q.PackagesNeeded = &n
	q.PackageCost = &pc
	return q
}

func baseQuote(mode Mode, selected, included int) Quote {
	if included < 0 {
		included = 0
	}
	return Quote{
		Mode:     mode,
		Selected: selected,
		Included: included,
		Overage:  Overage(selected, included),
	}
}

// Total returns the single cost of an individual or packages quote. For a
// dual quote it reports false: the purchase mode is the client's choice.
func (q Quote) Total() (int64, bool) {
	switch q.Mode {
	case ModeIndividual:
		return *q.IndividualCost, true
	case ModePackages:
		return *q.PackageCost, true
	default:
		return 0, false
	}
}

// For returns the cost of purchasing the overage with the chosen mode.
func (q Quote) For(mode Mode) (int64, error) {
	switch mode {
	case ModeIndividual:
		if q.IndividualCost == nil {
			return 0, fmt.Errorf("%w: plan does not sell individual photos", ErrInvalidPlan)
		}
		return *q.IndividualCost, nil
	case ModePackages:
		if q.PackageCost == nil {
			return 0, fmt.Errorf("%w: plan does not sell packages", ErrInvalidPlan)
		}
		return *q.PackageCost, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidPlan, mode)
	}
}
