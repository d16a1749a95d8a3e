package postgres

import (
	"encoding/json"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

func toDomainProduct(m productModel) domain.Product {
	var variants []string
	if m.VariantIDs != "" {
		_ = json.Unmarshal([]byte(m.VariantIDs), &variants)
	}
	return domain.Product{
		ProductID: m.ProductID, Name: m.Name, Price: m.Price, PackQuantity: m.PackQuantity,
		IsActive: m.IsActive, VariantIDs: variants, UpdatedAt: m.UpdatedAt,
	}
}

func fromDomainProduct(p domain.Product) productModel {
	variants := p.VariantIDs
	if variants == nil {
		variants = []string{}
	}
	raw, _ := json.Marshal(variants)
	return productModel{
		ProductID: p.ProductID, Name: p.Name, Price: p.Price, PackQuantity: p.PackQuantity,
		IsActive: p.IsActive, VariantIDs: string(raw), UpdatedAt: p.UpdatedAt,
	}
}

func toDomainStore(m storeModel) domain.Store {
	return domain.Store{StoreID: m.StoreID, AgencyID: m.AgencyID, Name: m.Name, UpdatedAt: m.UpdatedAt}
}

func toDomainAgency(m agencyModel) domain.Agency {
	return domain.Agency{
		AgencyID: m.AgencyID, Name: m.Name, MonthlyExpenseLimit: m.MonthlyExpenseLimit,
		CurrentMonthAmount: m.CurrentMonthAmount, MonthlyOrderLimit: m.MonthlyOrderLimit,
		CurrentMonthOrders: m.CurrentMonthOrders, BudgetLimitEnabled: m.BudgetLimitEnabled,
		OrderLimitEnabled: m.OrderLimitEnabled, CounterMonth: m.CounterMonth, UpdatedAt: m.UpdatedAt,
	}
}

func toDomainStockLevel(m stockLevelModel) domain.StockLevel {
	return domain.StockLevel{
		ProductID: m.ProductID, StoreID: m.StoreID, TotalPacks: m.TotalPacks,
		AvailablePacks: m.AvailablePacks, UpdatedAt: m.UpdatedAt,
	}
}

func toDomainStockMovement(m stockMovementModel) domain.StockMovement {
	return domain.StockMovement{
		MovementID: m.MovementID.String(), ProductID: m.ProductID, StoreID: m.StoreID, Delta: m.Delta,
		AvailableAfter: m.AvailableAfter, Reason: domain.MovementReason(m.Reason), Reference: m.Reference,
		CreatedAt: m.CreatedAt,
	}
}

func toDomainOrder(m orderModel, lines []orderLineModel) domain.Order {
	order := domain.Order{
		OrderID: m.OrderID, OrderNumber: m.OrderNumber, StoreID: m.StoreID, AgencyID: m.AgencyID,
		PlacedBy: m.PlacedBy, TotalAmount: m.TotalAmount, Status: domain.OrderStatus(m.Status),
		CountedMonth: m.CountedMonth, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
		Lines: make([]domain.OrderLine, 0, len(lines)),
	}
	if m.SourceCartID != nil {
		order.SourceCartID = *m.SourceCartID
	}
	for _, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID, ProductName: line.ProductName, UnitPrice: line.UnitPrice,
			PackQuantity: line.PackQuantity, Quantity: line.Quantity, LineTotal: line.LineTotal,
		})
	}
	return order
}

func fromDomainOrder(o domain.Order) (orderModel, []orderLineModel) {
	rec := orderModel{
		OrderID: o.OrderID, OrderNumber: o.OrderNumber, StoreID: o.StoreID, AgencyID: o.AgencyID,
		PlacedBy: o.PlacedBy, TotalAmount: o.TotalAmount, Status: string(o.Status),
		CountedMonth: o.CountedMonth, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
	if o.SourceCartID != "" {
		cartID := o.SourceCartID
		rec.SourceCartID = &cartID
	}
	lines := make([]orderLineModel, 0, len(o.Lines))
	for i, line := range o.Lines {
		lines = append(lines, orderLineModel{
			OrderID: o.OrderID, LineNo: i + 1, ProductID: line.ProductID, ProductName: line.ProductName,
			UnitPrice: line.UnitPrice, PackQuantity: line.PackQuantity, Quantity: line.Quantity,
			LineTotal: line.LineTotal,
		})
	}
	return rec, lines
}

func toDomainStatusChange(m orderStatusHistoryModel) domain.OrderStatusChange {
	return domain.OrderStatusChange{
		OrderID: m.OrderID, FromStatus: domain.OrderStatus(m.FromStatus), ToStatus: domain.OrderStatus(m.ToStatus),
		ChangedBy: m.ChangedBy, Override: m.Override, ChangedAt: m.ChangedAt,
	}
}
