package dao

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/errcode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserProfileDAO interface {
	Upsert(ctx context.Context, tx *gorm.DB, info *do.UserProfileInfo) error
	GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*do.UserProfileInfo, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.UserProfileInfo, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*do.UserProfileInfo, error)
	DeleteByUserID(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
}

type UserProfileDAOImpl struct{}

var userProfileDAO UserProfileDAO = &UserProfileDAOImpl{}

func GetUserProfileDAOImpl() UserProfileDAO {
	return userProfileDAO
}

// Upsert inserts the profile row or replaces the existing row with the same
// primary key. The write is a single atomic row replacement.
func (u *UserProfileDAOImpl) Upsert(ctx context.Context, tx *gorm.DB, info *do.UserProfileInfo) error {
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

func (u *UserProfileDAOImpl) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*do.UserProfileInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.UserProfileInfo{}
	query := tx.Model(&do.UserProfileInfo{}).Where("user_id = ?", userID).Take(&res)
	return &res, query.Error
}

func (u *UserProfileDAOImpl) GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.UserProfileInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.UserProfileInfo{}
	query := tx.Model(&do.UserProfileInfo{}).Where("id = ?", id).Take(&res)
	return &res, query.Error
}

func (u *UserProfileDAOImpl) GetAll(ctx context.Context, tx *gorm.DB) ([]*do.UserProfileInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.UserProfileInfo, 0)
	query := tx.Find(&infos)
	return infos, query.Error
}

func (u *UserProfileDAOImpl) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Where("user_id = ?", userID).Delete(&do.UserProfileInfo{})
	return query.RowsAffected, query.Error
}
