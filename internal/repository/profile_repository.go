package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/internal/model"
)

// ProfileRepository 用户资料只读仓储
type ProfileRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]*model.Profile, error)
}

type profileRepository struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepository{db: db} }

func (r *profileRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}
