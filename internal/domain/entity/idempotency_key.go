package entity

import "time"

// IdempotencyKey binds a client supplied key to the generation it started.
// Keys are unique per account.
type IdempotencyKey struct {
	UserAccountID int64     `gorm:"primaryKey;autoIncrement:false"`
	Key           string    `gorm:"primaryKey"`
	RequestHash   string    `gorm:"not null"`
	MessageID     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}
