package model

import (
	"time"

	"gorm.io/datatypes"
)

// MarketplaceItem 二手市场商品
type MarketplaceItem struct {
	ID          string                      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string                      `json:"user_id" gorm:"type:varchar(36);index:idx_item_user;not null"`
	Title       string                      `json:"title" gorm:"type:varchar(200);not null"`
	Price       float64                     `json:"price" gorm:"type:decimal(10,2);not null"`
	Category    string                      `json:"category" gorm:"type:varchar(64);index:idx_item_category;not null"`
	Condition   string                      `json:"condition" gorm:"type:varchar(64);not null"`
	Description string                      `json:"description" gorm:"type:text;not null"`
	Location    string                      `json:"location" gorm:"type:varchar(128);not null"`
	Features    datatypes.JSONSlice[string] `json:"features"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time                   `json:"updated_at"`

	Images []MarketplaceImage `json:"images,omitempty" gorm:"foreignKey:ItemID"`
}

func (MarketplaceItem) TableName() string { return "marketplace_items" }

// PrimaryImage returns the image flagged primary, if any.
func (it *MarketplaceItem) PrimaryImage() *MarketplaceImage {
	for i := range it.Images {
		if it.Images[i].IsPrimary {
			return &it.Images[i]
		}
	}
	return nil
}

// MarketplaceImage 商品图片元数据；二进制对象在对象存储中
// 同一商品最多一张 is_primary=true，由更新流程（先全部重置再设置）保证，不依赖数据库约束
type MarketplaceImage struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ItemID      string    `json:"item_id" gorm:"type:varchar(36);index:idx_image_item;not null"`
	StoragePath string    `json:"storage_path" gorm:"type:text;not null"`
	IsPrimary   bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`

	URL string `json:"url,omitempty" gorm:"-"`
}

func (MarketplaceImage) TableName() string { return "marketplace_images" }
