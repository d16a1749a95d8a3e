package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type productModel struct {
	ProductID    string          `gorm:"column:product_id;primaryKey"`
	Name         string          `gorm:"column:name"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(14,2)"`
	PackQuantity int             `gorm:"column:pack_quantity"`
	IsActive     bool            `gorm:"column:is_active"`
	VariantIDs   string          `gorm:"column:variant_ids;type:jsonb"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "products" }

type storeModel struct {
	StoreID   string    `gorm:"column:store_id;primaryKey"`
	AgencyID  string    `gorm:"column:agency_id"`
	Name      string    `gorm:"column:name"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (storeModel) TableName() string { return "stores" }

type agencyModel struct {
	AgencyID            string          `gorm:"column:agency_id;primaryKey"`
	Name                string          `gorm:"column:name"`
	MonthlyExpenseLimit decimal.Decimal `gorm:"column:monthly_expense_limit;type:numeric(14,2)"`
	CurrentMonthAmount  decimal.Decimal `gorm:"column:current_month_amount;type:numeric(14,2)"`
	MonthlyOrderLimit   int             `gorm:"column:monthly_order_limit"`
	CurrentMonthOrders  int             `gorm:"column:current_month_orders"`
	BudgetLimitEnabled  bool            `gorm:"column:budget_limit_enabled"`
	OrderLimitEnabled   bool            `gorm:"column:order_limit_enabled"`
	CounterMonth        string          `gorm:"column:counter_month"`
	UpdatedAt           time.Time       `gorm:"column:updated_at"`
}

func (agencyModel) TableName() string { return "agencies" }

type stockLevelModel struct {
	ProductID      string    `gorm:"column:product_id;primaryKey"`
	StoreID        string    `gorm:"column:store_id;primaryKey"`
	TotalPacks     int       `gorm:"column:total_packs"`
	AvailablePacks int       `gorm:"column:available_packs"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (stockLevelModel) TableName() string { return "stock_levels" }

type stockMovementModel struct {
	MovementID     uuid.UUID `gorm:"column:movement_id;type:uuid;primaryKey"`
	ProductID      string    `gorm:"column:product_id"`
	StoreID        string    `gorm:"column:store_id"`
	Delta          int       `gorm:"column:delta"`
	AvailableAfter int       `gorm:"column:available_after"`
	Reason         string    `gorm:"column:reason"`
	Reference      string    `gorm:"column:reference"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (stockMovementModel) TableName() string { return "stock_movements" }

type allocationModel struct {
	ProductID   string    `gorm:"column:product_id;primaryKey"`
	StoreID     string    `gorm:"column:store_id;primaryKey"`
	AllocatedAt time.Time `gorm:"column:allocated_at"`
}

func (allocationModel) TableName() string { return "allocations" }

type orderModel struct {
	OrderID      string          `gorm:"column:order_id;primaryKey"`
	OrderNumber  string          `gorm:"column:order_number"`
	StoreID      string          `gorm:"column:store_id"`
	AgencyID     string          `gorm:"column:agency_id"`
	PlacedBy     string          `gorm:"column:placed_by"`
	SourceCartID *string         `gorm:"column:source_cart_id"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2)"`
	Status       string          `gorm:"column:status"`
	CountedMonth string          `gorm:"column:counted_month"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (orderModel) TableName() string { return "orders" }

type orderLineModel struct {
	OrderID      string          `gorm:"column:order_id;primaryKey"`
	LineNo       int             `gorm:"column:line_no;primaryKey"`
	ProductID    string          `gorm:"column:product_id"`
	ProductName  string          `gorm:"column:product_name"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2)"`
	PackQuantity int             `gorm:"column:pack_quantity"`
	Quantity     int             `gorm:"column:quantity"`
	LineTotal    decimal.Decimal `gorm:"column:line_total;type:numeric(14,2)"`
}

func (orderLineModel) TableName() string { return "order_lines" }

type orderStatusHistoryModel struct {
	HistoryID  int64     `gorm:"column:history_id;primaryKey;autoIncrement"`
	OrderID    string    `gorm:"column:order_id"`
	FromStatus string    `gorm:"column:from_status"`
	ToStatus   string    `gorm:"column:to_status"`
	ChangedBy  string    `gorm:"column:changed_by"`
	Override   bool      `gorm:"column:override"`
	ChangedAt  time.Time `gorm:"column:changed_at"`
}

func (orderStatusHistoryModel) TableName() string { return "order_status_history" }

type retailOutboxModel struct {
	OutboxID         uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType        string     `gorm:"column:event_type"`
	PartitionKey     string     `gorm:"column:partition_key"`
	PartitionKeyPath string     `gorm:"column:partition_key_path"`
	Payload          string     `gorm:"column:payload;type:jsonb"`
	SchemaVersion    string     `gorm:"column:schema_version"`
	TraceID          string     `gorm:"column:trace_id"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	FirstSeenAt      time.Time  `gorm:"column:first_seen_at"`
	PublishedAt      *time.Time `gorm:"column:published_at"`
	RetryCount       int        `gorm:"column:retry_count"`
	LastError        *string    `gorm:"column:last_error"`
	LastErrorAt      *time.Time `gorm:"column:last_error_at"`
}

func (retailOutboxModel) TableName() string { return "retail_outbox" }

type retailIdempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (retailIdempotencyModel) TableName() string { return "retail_idempotency" }

type retailEventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (retailEventDedupModel) TableName() string { return "retail_event_dedup" }
