package models

import (
	"time"

	"github.com/google/uuid"
)

// CartRecord is the server-side cart owned by one storefront user.
type CartRecord struct {
	ID        uuid.UUID  `gorm:"column:id;type:text;primaryKey"`
	UserID    string     `gorm:"column:user_id;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartRecord) TableName() string { return "carts" }
