package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one line of a CartRecord. Product and DosePack hold the
// denormalized JSON payloads exactly as the client sent them.
type CartItem struct {
	ID                    uuid.UUID `gorm:"column:id;type:text;primaryKey"`
	CartID                uuid.UUID `gorm:"column:cart_id;type:text;not null;index"`
	Position              int       `gorm:"column:position;not null"`
	ProductID             string    `gorm:"column:product_id;not null"`
	DosePackID            string    `gorm:"column:dose_pack_id"`
	Quantity              int       `gorm:"column:quantity;not null"`
	RequestedDeliveryDate string    `gorm:"column:requested_delivery_date"`
	SpecialInstructions   string    `gorm:"column:special_instructions;not null;default:''"`
	Product               string    `gorm:"column:product"`
	DosePack              string    `gorm:"column:dose_pack"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
