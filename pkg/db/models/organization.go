package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is firmographic data resolved from an external provider,
// keyed by web domain. Source timestamps are provider epochs, not ours.
type Organization struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Domain           string    `gorm:"column:domain;type:text;not null;uniqueIndex"`
	Name             string    `gorm:"column:name;type:text;not null"`
	PrimaryRole      *string   `gorm:"column:primary_role"`
	ShortDescription *string   `gorm:"column:short_description"`
	HomepageURL      *string   `gorm:"column:homepage_url"`
	FacebookURL      *string   `gorm:"column:facebook_url"`
	TwitterURL       *string   `gorm:"column:twitter_url"`
	LinkedinURL      *string   `gorm:"column:linkedin_url"`
	APIURL           *string   `gorm:"column:api_url"`
	City             *string   `gorm:"column:city"`
	Region           *string   `gorm:"column:region"`
	Country          *string   `gorm:"column:country"`
	StockExchange    *string   `gorm:"column:stock_exchange"`
	StockSymbol      *string   `gorm:"column:stock_symbol"`
	SourceCreatedAt  *int64    `gorm:"column:source_created_at"`
	SourceUpdatedAt  *int64    `gorm:"column:source_updated_at"`
	SyncedAt         time.Time `gorm:"column:synced_at;not null"`
}
