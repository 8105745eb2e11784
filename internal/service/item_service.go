package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/apperr"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
	"github.com/Vasilion/UnyX-Social/pkg/storage"
)

// ItemInput 商品可编辑字段
type ItemInput struct {
	Title       string   `json:"title" form:"title" validate:"required,max=200"`
	Price       float64  `json:"price" form:"price" validate:"gt=0"`
	Condition   string   `json:"condition" form:"condition" validate:"required,max=64"`
	Category    string   `json:"category" form:"category" validate:"required,max=64"`
	Location    string   `json:"location" form:"location" validate:"required,max=128"`
	Description string   `json:"description" form:"description" validate:"required"`
	Features    []string `json:"features" form:"features" validate:"dive,max=200"`
}

// Upload 待上传的图片
type Upload struct {
	Filename string
	Body     io.Reader
}

// ItemUpdate 编辑商品：字段 + 新图片 + 删除的图片 + 新主图
type ItemUpdate struct {
	ItemInput
	Uploads        []Upload
	DeleteImageIDs []string
	PrimaryImageID string
}

// ItemService 二手商品及图片
type ItemService interface {
	Create(ctx context.Context, caller identity.Identity, in ItemInput, uploads []Upload) (*model.MarketplaceItem, error)
	Get(ctx context.Context, id string) (*model.MarketplaceItem, error)

	// List category 为空或 "all" 时不过滤
	List(ctx context.Context, category string) ([]*model.MarketplaceItem, error)
	Update(ctx context.Context, caller identity.Identity, id string, upd ItemUpdate) (*model.MarketplaceItem, error)
	SetPrimaryImage(ctx context.Context, caller identity.Identity, itemID, imageID string) error

	// Delete 删除商品及其消息、图片；对象存储清理失败只记录日志
	Delete(ctx context.Context, caller identity.Identity, id string) error
}

type itemService struct {
	items    repository.ItemRepository
	store    storage.ObjectStore
	bucket   string
	validate *validator.Validate
	timeout  time.Duration
}

func NewItemService(items repository.ItemRepository, store storage.ObjectStore, bucket string, storeTimeout time.Duration) ItemService {
	if bucket == "" {
		bucket = "marketplace"
	}
	return &itemService{
		items:    items,
		store:    store,
		bucket:   bucket,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  storeTimeout,
	}
}

func (s *itemService) check(in *ItemInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Condition = strings.TrimSpace(in.Condition)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)

	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Invalid(strings.ToLower(verrs[0].Field()), "failed "+verrs[0].Tag())
	}
	return apperr.Invalid("", err.Error())
}

func objectPath(itemID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("marketplace/%s/%s%s", itemID, uuid.NewString(), ext)
}

// upload stores the binaries; on failure the ones already stored are removed.
func (s *itemService) upload(ctx context.Context, itemID string, uploads []Upload, firstPrimary bool) ([]*model.MarketplaceImage, error) {
	images := make([]*model.MarketplaceImage, 0, len(uploads))
	for i, up := range uploads {
		p, err := s.store.Upload(ctx, s.bucket, objectPath(itemID, up.Filename), up.Body)
		if err != nil {
			s.removeObjects(ctx, itemID, imagePaths(images))
			return nil, apperr.Store("upload image", err)
		}
		images = append(images, &model.MarketplaceImage{
			ID:          uuid.NewString(),
			ItemID:      itemID,
			StoragePath: p,
			IsPrimary:   firstPrimary && i == 0,
		})
	}
	return images, nil
}

func (s *itemService) removeObjects(ctx context.Context, itemID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := s.store.Remove(ctx, s.bucket, paths); err != nil {
		logger.Warn("remove stored images failed",
			zap.String("item_id", itemID),
			zap.Strings("paths", paths),
			zap.Error(err))
	}
}

func imagePaths[T model.MarketplaceImage | *model.MarketplaceImage](images []T) []string {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		switch v := any(img).(type) {
		case model.MarketplaceImage:
			paths = append(paths, v.StoragePath)
		case *model.MarketplaceImage:
			paths = append(paths, v.StoragePath)
		}
	}
	return paths
}

func (s *itemService) withURLs(item *model.MarketplaceItem) *model.MarketplaceItem {
	for i := range item.Images {
		item.Images[i].URL = s.store.URL(s.bucket, item.Images[i].StoragePath)
	}
	return item
}

// owned loads the item and checks the caller owns it.
func (s *itemService) owned(ctx context.Context, caller identity.Identity, id string) (*model.MarketplaceItem, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Store("get item", err)
	}
	if item.UserID != caller.UserID {
		return nil, apperr.Forbidden("caller does not own this item")
	}
	return item, nil
}

func (s *itemService) Create(ctx context.Context, caller identity.Identity, in ItemInput, uploads []Upload) (*model.MarketplaceItem, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	if err := s.check(&in); err != nil {
		return nil, err
	}

	itemID := uuid.NewString()
	images, err := s.upload(ctx, itemID, uploads, true)
	if err != nil {
		return nil, err
	}

	item := &model.MarketplaceItem{
		ID:          itemID,
		UserID:      caller.UserID,
		Title:       in.Title,
		Price:       in.Price,
		Category:    in.Category,
		Condition:   in.Condition,
		Description: in.Description,
		Location:    in.Location,
		Features:    in.Features,
	}
	for _, img := range images {
		item.Images = append(item.Images, *img)
	}

	dbCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.items.Create(dbCtx, item); err != nil {
		s.removeObjects(ctx, itemID, imagePaths(images))
		return nil, apperr.Store("create item", err)
	}
	logger.Info("item created", zap.String("item_id", itemID), zap.Int("images", len(images)))
	return s.withURLs(item), nil
}

func (s *itemService) Get(ctx context.Context, id string) (*model.MarketplaceItem, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Store("get item", err)
	}
	return s.withURLs(item), nil
}

func (s *itemService) List(ctx context.Context, category string) ([]*model.MarketplaceItem, error) {
	if category == "all" {
		category = ""
	}
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.items.List(ctx, category)
	if err != nil {
		return nil, apperr.Store("list items", err)
	}
	for _, it := range items {
		s.withURLs(it)
	}
	return items, nil
}

func (s *itemService) Update(ctx context.Context, caller identity.Identity, id string, upd ItemUpdate) (*model.MarketplaceItem, error) {
	dbCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	item, err := s.owned(dbCtx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(&upd.ItemInput); err != nil {
		return nil, err
	}
	if err := checkPrimary(item, upd); err != nil {
		return nil, err
	}

	item.Title = upd.Title
	item.Price = upd.Price
	item.Condition = upd.Condition
	item.Category = upd.Category
	item.Location = upd.Location
	item.Description = upd.Description
	item.Features = upd.Features
	item.UpdatedAt = time.Now().UTC()

	// 新图片一律非主图；没有主图时由仓储提升最早的剩余图片
	added, err := s.upload(ctx, id, upd.Uploads, false)
	if err != nil {
		return nil, err
	}
	deleted, err := s.items.Update(dbCtx, item, added, upd.DeleteImageIDs, upd.PrimaryImageID)
	if err != nil {
		s.removeObjects(ctx, id, imagePaths(added))
		return nil, apperr.Store("update item", err)
	}
	s.removeObjects(ctx, id, imagePaths(deleted))

	fresh, err := s.items.GetByID(dbCtx, id)
	if err != nil {
		return nil, apperr.Store("get item", err)
	}
	return s.withURLs(fresh), nil
}

// checkPrimary rejects a primary image that is being deleted or is not an
// image of the item, before anything is written.
func checkPrimary(item *model.MarketplaceItem, upd ItemUpdate) error {
	if upd.PrimaryImageID == "" {
		return nil
	}
	for _, id := range upd.DeleteImageIDs {
		if id == upd.PrimaryImageID {
			return apperr.Invalid("primary_image_id", "image is being deleted")
		}
	}
	for _, img := range item.Images {
		if img.ID == upd.PrimaryImageID {
			return nil
		}
	}
	return apperr.Invalid("primary_image_id", "not an image of this item")
}

func (s *itemService) SetPrimaryImage(ctx context.Context, caller identity.Identity, itemID, imageID string) error {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.owned(ctx, caller, itemID); err != nil {
		return err
	}
	if imageID == "" {
		return apperr.Invalid("image_id", "required")
	}
	if err := s.items.SetPrimaryImage(ctx, itemID, imageID); err != nil {
		return apperr.Store("set primary image", err)
	}
	return nil
}

func (s *itemService) Delete(ctx context.Context, caller identity.Identity, id string) error {
	dbCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.owned(dbCtx, caller, id); err != nil {
		return err
	}
	images, err := s.items.Delete(dbCtx, id)
	if err != nil {
		return apperr.Store("delete item", err)
	}
	s.removeObjects(ctx, id, imagePaths(images))
	logger.Info("item deleted", zap.String("item_id", id), zap.Int("images", len(images)))
	return nil
}
