package model

import "time"

// ShopConnection holds per-tenant credentials for the external platform.
// The sync subsystem only ever reads these rows; the connection CRUD
// surface owns them.
type ShopConnection struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	ShopDomain  string     `json:"shop_domain" gorm:"size:128;not null"`
	AccessToken string     `json:"-" gorm:"size:128;not null"`
	Active      bool       `json:"active" gorm:"default:true"`
	LastSyncAt  *time.Time `json:"last_sync_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
