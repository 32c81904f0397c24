package entity

import "time"

type UserAccount struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                string     `gorm:"not null;uniqueIndex" json:"userId"`
	UserName              *string    `gorm:"" json:"userName,omitempty"`
	ImageGenerationTokens int        `gorm:"not null;default:0" json:"imageGenerationTokens"`
	IsUnlimited           bool       `gorm:"not null;default:false" json:"isUnlimited"`
	NextTokenRegeneration *time.Time `gorm:"" json:"nextTokenRegeneration,omitempty"`
	CreatedAt             time.Time  `gorm:"not null" json:"createdAt"`
}

func (UserAccount) TableName() string {
	return "user_accounts"
}

// CanGenerate reports whether the account may start another generation.
func (a UserAccount) CanGenerate() bool {
	return a.IsUnlimited || a.ImageGenerationTokens > 0
}
