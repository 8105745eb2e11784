package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/internal/model"
)

// ItemRepository 商品及图片仓储接口
type ItemRepository interface {
	// Create 创建商品（含 Images）
	Create(ctx context.Context, item *model.MarketplaceItem) error

	// GetByID 查询商品并预加载图片；不存在返回 gorm.ErrRecordNotFound
	GetByID(ctx context.Context, id string) (*model.MarketplaceItem, error)

	// List 按创建时间倒序；category 为空表示全部
	List(ctx context.Context, category string) ([]*model.MarketplaceItem, error)

	// Titles 批量查询商品标题
	Titles(ctx context.Context, ids []string) (map[string]string, error)

	// Update 同一事务内：更新字段、写入新图片、删除指定图片、设置主图。
	// primaryID 为空且没有主图时，最早的剩余图片成为主图。返回被删除的图片记录
	Update(ctx context.Context, item *model.MarketplaceItem, added []*model.MarketplaceImage, deleteIDs []string, primaryID string) ([]model.MarketplaceImage, error)

	// SetPrimaryImage 同一事务内先重置全部，再设置指定图片为主图
	SetPrimaryImage(ctx context.Context, itemID, imageID string) error

	// Delete 级联删除：outbox、消息、图片记录、商品（同一事务），返回图片记录用于清理对象存储
	Delete(ctx context.Context, id string) ([]model.MarketplaceImage, error)
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository { return &itemRepository{db: db} }

func (r *itemRepository) Create(ctx context.Context, item *model.MarketplaceItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*model.MarketplaceItem, error) {
	var item model.MarketplaceItem
	err := r.db.WithContext(ctx).
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) List(ctx context.Context, category string) ([]*model.MarketplaceItem, error) {
	q := r.db.WithContext(ctx).
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Order("created_at DESC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var items []*model.MarketplaceItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) Titles(ctx context.Context, ids []string) (map[string]string, error) {
	res := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var rows []struct {
		ID    string
		Title string
	}
	if err := r.db.WithContext(ctx).
		Model(&model.MarketplaceItem{}).
		Select("id", "title").
		Where("id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		res[row.ID] = row.Title
	}
	return res, nil
}

func (r *itemRepository) Update(ctx context.Context, item *model.MarketplaceItem, added []*model.MarketplaceImage, deleteIDs []string, primaryID string) ([]model.MarketplaceImage, error) {
	var deleted []model.MarketplaceImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.MarketplaceItem{ID: item.ID}).
			Select("title", "price", "condition", "category", "location", "description", "features", "updated_at").
			Updates(item)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if len(added) > 0 {
			if err := tx.Create(&added).Error; err != nil {
				return err
			}
		}

		var err error
		if deleted, err = deleteImages(tx, item.ID, deleteIDs); err != nil {
			return err
		}
		if primaryID != "" {
			return setPrimary(tx, item.ID, primaryID)
		}
		return ensurePrimary(tx, item.ID)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *itemRepository) SetPrimaryImage(ctx context.Context, itemID, imageID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setPrimary(tx, itemID, imageID)
	})
}

// deleteImages 只删除属于 itemID 的图片
func deleteImages(tx *gorm.DB, itemID string, imageIDs []string) ([]model.MarketplaceImage, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}
	var images []model.MarketplaceImage
	if err := tx.Where("item_id = ? AND id IN ?", itemID, imageIDs).Find(&images).Error; err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	if err := tx.Where("id IN ?", ids).Delete(&model.MarketplaceImage{}).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// setPrimary 先重置再设置；图片不属于该商品时返回 gorm.ErrRecordNotFound
func setPrimary(tx *gorm.DB, itemID, imageID string) error {
	var cnt int64
	if err := tx.Model(&model.MarketplaceImage{}).
		Where("id = ? AND item_id = ?", imageID, itemID).
		Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return gorm.ErrRecordNotFound
	}
	if err := tx.Model(&model.MarketplaceImage{}).
		Where("item_id = ?", itemID).
		Update("is_primary", false).Error; err != nil {
		return err
	}
	return tx.Model(&model.MarketplaceImage{}).
		Where("id = ?", imageID).
		Update("is_primary", true).Error
}

func ensurePrimary(tx *gorm.DB, itemID string) error {
	var cnt int64
	if err := tx.Model(&model.MarketplaceImage{}).
		Where("item_id = ? AND is_primary = ?", itemID, true).
		Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	var first model.MarketplaceImage
	err := tx.Where("item_id = ?", itemID).Order("created_at ASC, id ASC").Limit(1).Find(&first).Error
	if err != nil || first.ID == "" {
		return err
	}
	return tx.Model(&first).Update("is_primary", true).Error
}

func (r *itemRepository) Delete(ctx context.Context, id string) ([]model.MarketplaceImage, error) {
	var images []model.MarketplaceImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", id).Find(&images).Error; err != nil {
			return err
		}
		msgIDs := tx.Model(&model.Message{}).Select("id").Where("item_id = ?", id)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&model.MessageOutbox{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&model.MarketplaceImage{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.MarketplaceItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}
