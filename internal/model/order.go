package model

// Order: заказ из магазина, ядро чата его только читает.
type Order struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	ProductName  string  `json:"product_name"`
	TotalPrice   float64 `json:"total_price"`
	ProductImage string  `json:"product_image"`
	Status       string  `json:"status"`
}

func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		OrderID:      o.ID,
		ProductName:  o.ProductName,
		TotalPrice:   o.TotalPrice,
		ProductImage: o.ProductImage,
		Status:       o.Status,
	}
}
