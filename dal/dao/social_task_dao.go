package dao

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/errcode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SocialTaskDAO interface {
	Upsert(ctx context.Context, tx *gorm.DB, info *do.SocialTaskInfo) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.SocialTaskInfo, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*do.SocialTaskInfo, error)
	GetActive(ctx context.Context, tx *gorm.DB) ([]*do.SocialTaskInfo, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error)
}

type SocialTaskDAOImpl struct{}

var socialTaskDAO SocialTaskDAO = &SocialTaskDAOImpl{}

func GetSocialTaskDAOImpl() SocialTaskDAO {
	return socialTaskDAO
}

func (s *SocialTaskDAOImpl) Upsert(ctx context.Context, tx *gorm.DB, info *do.SocialTaskInfo) error {
	if tx == nil {
		return errcode.ErrNilGormDB
	}

	if info == nil {
		return errcode.ErrNilEntity
	}

	query := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(info)
	return query.Error
}

func (s *SocialTaskDAOImpl) GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.SocialTaskInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.SocialTaskInfo{}
	query := tx.Model(&do.SocialTaskInfo{}).Where("id = ?", id).Take(&res)
	return &res, query.Error
}

func (s *SocialTaskDAOImpl) GetAll(ctx context.Context, tx *gorm.DB) ([]*do.SocialTaskInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.SocialTaskInfo, 0)
	query := tx.Model(&do.SocialTaskInfo{}).Order("sort_order").Find(&infos)
	return infos, query.Error
}

func (s *SocialTaskDAOImpl) GetActive(ctx context.Context, tx *gorm.DB) ([]*do.SocialTaskInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.SocialTaskInfo, 0)
	query := tx.Model(&do.SocialTaskInfo{}).Where("is_active = ?", true).
		Order("sort_order").Find(&infos)
	return infos, query.Error
}

func (s *SocialTaskDAOImpl) Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Where("id = ?", id).Delete(&do.SocialTaskInfo{})
	return query.RowsAffected, query.Error
}
