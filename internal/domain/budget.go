package domain

import "github.com/shopspring/decimal"

type LimitInput struct {
	CurrentMonthAmount  decimal.Decimal
	MonthlyExpenseLimit decimal.Decimal
	OrderTotal          decimal.Decimal
	CurrentMonthOrders  int
	MonthlyOrderLimit   int
	BudgetLimitEnabled  bool
	OrderLimitEnabled   bool
}

// LimitEvaluation reports each limit independently. A disabled limit is not
// evaluated at all, which is different from passing.
type LimitEvaluation struct {
	BudgetEvaluated     bool            `json:"budget_evaluated"`
	ExceedsBudget       bool            `json:"exceeds_budget"`
	ExceedAmount        decimal.Decimal `json:"exceed_amount"`
	OrderCountEvaluated bool            `json:"order_count_evaluated"`
	ExceedsOrderCount   bool            `json:"exceeds_order_count"`
}

func (e LimitEvaluation) Exceeded() bool {
	return e.ExceedsBudget || e.ExceedsOrderCount
}

func EvaluateLimits(in LimitInput) LimitEvaluation {
	var out LimitEvaluation
	if in.BudgetLimitEnabled {
		remaining := in.MonthlyExpenseLimit.Sub(in.CurrentMonthAmount)
		out.BudgetEvaluated = true
		out.ExceedAmount = in.OrderTotal.Sub(remaining)
		out.ExceedsBudget = out.ExceedAmount.IsPositive()
	}
	if in.OrderLimitEnabled {
		out.OrderCountEvaluated = true
		out.ExceedsOrderCount = in.CurrentMonthOrders+1 > in.MonthlyOrderLimit
	}
	return out
}

// LimitInputFor builds the guard input from the agency counters of month.
func LimitInputFor(agency Agency, month string, orderTotal decimal.Decimal) LimitInput {
	amount, orders := agency.CountersFor(month)
	return LimitInput{
		CurrentMonthAmount:  amount,
		MonthlyExpenseLimit: agency.MonthlyExpenseLimit,
		OrderTotal:          orderTotal,
		CurrentMonthOrders:  orders,
		MonthlyOrderLimit:   agency.MonthlyOrderLimit,
		BudgetLimitEnabled:  agency.BudgetLimitEnabled,
		OrderLimitEnabled:   agency.OrderLimitEnabled,
	}
}
