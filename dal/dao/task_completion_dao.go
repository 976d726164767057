package dao

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/errcode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaskCompletionDAO interface {
	Upsert(ctx context.Context, tx *gorm.DB, info *do.TaskCompletionInfo) error
	GetByUserAndTask(ctx context.Context, tx *gorm.DB, userID string, taskID string) (*do.TaskCompletionInfo, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*do.TaskCompletionInfo, error)
	ExistUserAndTask(ctx context.Context, tx *gorm.DB, userID string, taskID string) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error)
}

type TaskCompletionDAOImpl struct{}

var taskCompletionDAO TaskCompletionDAO = &TaskCompletionDAOImpl{}

func GetTaskCompletionDAOImpl() TaskCompletionDAO {
	return taskCompletionDAO
}

func (t *TaskCompletionDAOImpl) Upsert(ctx context.Context, tx *gorm.DB, info *do.TaskCompletionInfo) error {
	if tx == nil {
		return errcode.ErrNilGormDB
	}

	if info == nil {
		return errcode.ErrNilEntity
	}

	// A completion is unique per (user, task); conflicts on that pair update
	// the existing row rather than creating a second grant.
	query := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "task_id"}},
		UpdateAll: true,
	}).Create(info)
	return query.Error
}

func (t *TaskCompletionDAOImpl) GetByUserAndTask(ctx context.Context, tx *gorm.DB, userID string, taskID string) (*do.TaskCompletionInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.TaskCompletionInfo{}
	query := tx.Model(&do.TaskCompletionInfo{}).
		Where("user_id = ? AND task_id = ?", userID, taskID).Take(&res)
	return &res, query.Error
}

func (t *TaskCompletionDAOImpl) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) ([]*do.TaskCompletionInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.TaskCompletionInfo, 0)
	query := tx.Model(&do.TaskCompletionInfo{}).Where("user_id = ?", userID).Find(&infos)
	return infos, query.Error
}

func (t *TaskCompletionDAOImpl) ExistUserAndTask(ctx context.Context, tx *gorm.DB, userID string, taskID string) (bool, error) {
	if tx == nil {
		return false, errcode.ErrNilGormDB
	}

	var count int64
	query := tx.Model(&do.TaskCompletionInfo{}).
		Where("user_id = ? AND task_id = ?", userID, taskID).Count(&count)
	if query.Error != nil {
		return false, query.Error
	}
	if count > 0 {
		return true, nil
	}
	return false, nil
}

func (t *TaskCompletionDAOImpl) Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Where("id = ?", id).Delete(&do.TaskCompletionInfo{})
	return query.RowsAffected, query.Error
}
