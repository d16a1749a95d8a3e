package contracts

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type AddToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	ChangeID  string `json:"change_id"`
}

type ChangeQuantityRequest struct {
	Delta    int    `json:"delta"`
	ChangeID string `json:"change_id"`
}

type ApproveOrderRequest struct {
	OverrideLimit bool `json:"override_limit"`
}

type ChangeOrderStatusRequest struct {
	OrderIDs      []string `json:"order_ids"`
	Status        string   `json:"status"`
	OverrideLimit bool     `json:"override_limit,omitempty"`
}

type AllocationRequest struct {
	ProductIDs      []string `json:"product_ids"`
	StoreIDs        []string `json:"store_ids"`
	IncludeVariants bool     `json:"include_variants,omitempty"`
}

type SyncProductStoresRequest struct {
	StoreIDs []string `json:"store_ids"`
}

type RestockRequest struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Packs     int    `json:"packs"`
	Reference string `json:"reference,omitempty"`
}
