package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	PackQuantity int             `json:"pack_quantity"`
	IsActive     bool            `json:"is_active"`
	VariantIDs   []string        `json:"variant_ids,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Store struct {
	StoreID   string    `json:"store_id"`
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agency carries the monthly ordering limits shared by all of its stores.
// Counters belong to CounterMonth; see CountersFor.
type Agency struct {
	AgencyID            string          `json:"agency_id"`
	Name                string          `json:"name"`
	MonthlyExpenseLimit decimal.Decimal `json:"monthly_expense_limit"`
	CurrentMonthAmount  decimal.Decimal `json:"current_month_amount"`
	MonthlyOrderLimit   int             `json:"monthly_order_limit"`
	CurrentMonthOrders  int             `json:"current_month_orders"`
	BudgetLimitEnabled  bool            `json:"budget_limit_enabled"`
	OrderLimitEnabled   bool            `json:"order_limit_enabled"`
	CounterMonth        string          `json:"counter_month"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CountersFor returns the spend and order counters for month. Counters recorded
// for an older month read as zero.
func (a Agency) CountersFor(month string) (decimal.Decimal, int) {
	if a.CounterMonth != month {
		return decimal.Zero, 0
	}
	return a.CurrentMonthAmount, a.CurrentMonthOrders
}

// AddToMonth moves the counters by amount and orders for month, rolling them
// over first when the recorded month is stale.
func (a Agency) AddToMonth(month string, amount decimal.Decimal, orders int) Agency {
	current, count := a.CountersFor(month)
	a.CounterMonth = month
	a.CurrentMonthAmount = current.Add(amount)
	a.CurrentMonthOrders = count + orders
	if a.CurrentMonthAmount.IsNegative() {
		a.CurrentMonthAmount = decimal.Zero
	}
	if a.CurrentMonthOrders < 0 {
		a.CurrentMonthOrders = 0
	}
	return a
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func ValidateProduct(p Product) error {
	if strings.TrimSpace(p.ProductID) == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}
	if p.PackQuantity <= 0 {
		return fmt.Errorf("%w: pack_quantity must be positive", ErrInvalidInput)
	}
	for _, id := range p.VariantIDs {
		if id == p.ProductID {
			return fmt.Errorf("%w: product cannot be its own variant", ErrInvalidInput)
		}
	}
	return nil
}

func ValidateAgency(a Agency) error {
	if strings.TrimSpace(a.AgencyID) == "" {
		return fmt.Errorf("%w: agency_id is required", ErrInvalidInput)
	}
	if a.MonthlyExpenseLimit.IsNegative() {
		return fmt.Errorf("%w: monthly_expense_limit cannot be negative", ErrInvalidInput)
	}
	if a.MonthlyOrderLimit < 0 {
		return fmt.Errorf("%w: monthly_order_limit cannot be negative", ErrInvalidInput)
	}
	return nil
}
