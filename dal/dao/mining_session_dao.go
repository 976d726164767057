package dao

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/errcode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MiningSessionDAO interface {
	Upsert(ctx context.Context, tx *gorm.DB, info *do.MiningSessionInfo) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.MiningSessionInfo, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*do.MiningSessionInfo, error)
	GetSessionNum(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error)
}

type MiningSessionDAOImpl struct{}

var miningSessionDAO MiningSessionDAO = &MiningSessionDAOImpl{}

func GetMiningSessionDAOImpl() MiningSessionDAO {
	return miningSessionDAO
}

func (m *MiningSessionDAOImpl) Upsert(ctx context.Context, tx *gorm.DB, info *do.MiningSessionInfo) error {
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

func (m *MiningSessionDAOImpl) GetByID(ctx context.Context, tx *gorm.DB, id string) (*do.MiningSessionInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.MiningSessionInfo{}
	query := tx.Model(&do.MiningSessionInfo{}).Where("id = ?", id).Take(&res)
	return &res, query.Error
}

// GetByUserID returns the user's sessions, most recent first.
func (m *MiningSessionDAOImpl) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*do.MiningSessionInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.MiningSessionInfo, 0)
	query := tx.Model(&do.MiningSessionInfo{}).Where("user_id = ?", userID).
		Order("created_at desc").Find(&infos)
	return infos, query.Error
}

func (m *MiningSessionDAOImpl) GetSessionNum(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	var res int64
	query := tx.Model(&do.MiningSessionInfo{}).Where("user_id = ?", userID).Count(&res)
	return res, query.Error
}

func (m *MiningSessionDAOImpl) Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Where("id = ?", id).Delete(&do.MiningSessionInfo{})
	return query.RowsAffected, query.Error
}
