package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusInProgress   TicketStatus = "InProgress"
	TicketStatusAcknowledged TicketStatus = "Acknowledged_by_Operator"
	TicketStatusDealCancel   TicketStatus = "Deal_Cancel"
	TicketStatusDealComplete TicketStatus = "Deal_Complete"
)

// Terminal reports whether the status resolves the ticket.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusDealCancel || s == TicketStatusDealComplete
}

// PartySnapshot is a point-in-time copy of a buyer or seller.
type PartySnapshot struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
}

// TicketSnapshot is copied onto the ticket at creation. Later edits to the product
// or either user never change it.
type TicketSnapshot struct {
	ProductName  string        `json:"product_name"`
	ProductPrice float64       `json:"product_price"`
	ProductUnit  string        `json:"product_unit"`
	Buyer        PartySnapshot `json:"buyer"`
	Seller       PartySnapshot `json:"seller"`
}

// Ticket tracks a buyer's interest in a product through to deal resolution.
type Ticket struct {
	ID               string
	Number           int64
	ProductID        string
	BuyerID          string
	SellerID         string
	Snapshot         TicketSnapshot
	Description      string
	Status           TicketStatus
	ResolveTimestamp *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
