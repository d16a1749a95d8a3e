package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

// Consumed.

type ProductUpsertedPayload struct {
	ProductID    string   `json:"product_id"`
	Name         string   `json:"name"`
	Price        string   `json:"price"`
	PackQuantity int      `json:"pack_quantity"`
	IsActive     bool     `json:"is_active"`
	VariantIDs   []string `json:"variant_ids,omitempty"`
}

type StockReceivedPayload struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Packs     int    `json:"packs"`
	Reference string `json:"reference,omitempty"`
}

type AgencyLimitsUpdatedPayload struct {
	AgencyID            string `json:"agency_id"`
	Name                string `json:"name,omitempty"`
	MonthlyExpenseLimit string `json:"monthly_expense_limit"`
	MonthlyOrderLimit   int    `json:"monthly_order_limit"`
	BudgetLimitEnabled  bool   `json:"budget_limit_enabled"`
	OrderLimitEnabled   bool   `json:"order_limit_enabled"`
}

type StoreUpsertedPayload struct {
	StoreID  string `json:"store_id"`
	AgencyID string `json:"agency_id"`
	Name     string `json:"name"`
}

// Emitted.

type OrderSubmittedPayload struct {
	OrderID          string `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	StoreID          string `json:"store_id"`
	AgencyID         string `json:"agency_id"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	LineCount        int    `json:"line_count"`
	RequiresApproval bool   `json:"requires_approval"`
	SubmittedAt      string `json:"submitted_at"`
}

type OrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	StoreID    string `json:"store_id"`
	AgencyID   string `json:"agency_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ChangedBy  string `json:"changed_by"`
	Override   bool   `json:"override,omitempty"`
	ChangedAt  string `json:"changed_at"`
}

type AllocationChangedPayload struct {
	ProductID string   `json:"product_id"`
	Action    string   `json:"action"`
	StoreIDs  []string `json:"store_ids"`
	ChangedBy string   `json:"changed_by"`
	ChangedAt string   `json:"changed_at"`
}
