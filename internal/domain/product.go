package domain

import "time"

// Product is a seller listing. This service only reads it.
type Product struct {
	ID        string
	SellerID  string
	Name      string
	Price     float64
	Unit      string
	City      string
	CreatedAt time.Time
}

// Favorite marks a buyer's interest in a product without opening a ticket.
type Favorite struct {
	BuyerID   string
	ProductID string
	CreatedAt time.Time
}
