package grpc

const (
	cartServiceName      = "retail.ordering.v1.CartService"
	changeQuantityMethod = "/" + cartServiceName + "/ChangeQuantity"
	revertChangeMethod   = "/" + cartServiceName + "/RevertChange"
)

type ChangeQuantityRequest struct {
	StoreID   string `json:"store_id"`
	ChangeID  string `json:"change_id"`
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

type RevertChangeRequest struct {
	ChangeID string `json:"change_id"`
}

// CartLineReply is returned by both calls: the line as the server holds it
// after the change or its revert.
type CartLineReply struct {
	ChangeID       string `json:"change_id"`
	StoreID        string `json:"store_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	AvailablePacks int    `json:"available_packs"`
	Replayed       bool   `json:"replayed,omitempty"`
	Reverted       bool   `json:"reverted,omitempty"`
}
