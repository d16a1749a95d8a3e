package domain

const (
	EventCatalogProductUpserted = "catalog.product_upserted"
	EventCatalogStockReceived   = "catalog.stock_received"
	EventAgencyLimitsUpdated    = "agency.limits_updated"
	EventAgencyStoreUpserted    = "agency.store_upserted"

	EventOrderSubmitted     = "order.submitted"
	EventOrderStatusChanged = "order.status_changed"
	EventAllocationChanged  = "allocation.changed"
)

func IsCanonicalInputEvent(eventType string) bool {
	switch eventType {
	case EventCatalogProductUpserted, EventCatalogStockReceived, EventAgencyLimitsUpdated, EventAgencyStoreUpserted:
		return true
	default:
		return false
	}
}

func IsCanonicalEmittedEvent(eventType string) bool {
	switch eventType {
	case EventOrderSubmitted, EventOrderStatusChanged, EventAllocationChanged:
		return true
	default:
		return false
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	switch eventType {
	case EventOrderSubmitted, EventOrderStatusChanged:
		return "data.order_id"
	case EventAllocationChanged:
		return "data.product_id"
	case EventCatalogProductUpserted, EventCatalogStockReceived:
		return "data.product_id"
	case EventAgencyLimitsUpdated:
		return "data.agency_id"
	case EventAgencyStoreUpserted:
		return "data.store_id"
	default:
		return ""
	}
}
