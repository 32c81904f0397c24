package entity

import "time"

type GeneratedImage struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAccountID int64     `gorm:"not null;index" json:"userAccountId"`
	Prompt        string    `gorm:"not null" json:"prompt"`
	Key           string    `gorm:"not null" json:"key"`
	BlurHash      *string   `gorm:"" json:"blurHash,omitempty"`
	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
}

func (GeneratedImage) TableName() string {
	return "generated_images"
}

// NewGeneratedImage is the insert shape; the account id is stamped by the repository.
type NewGeneratedImage struct {
	Prompt   string
	Key      string
	BlurHash *string
}
