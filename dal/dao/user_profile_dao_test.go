package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/errcode"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(&do.UserProfileInfo{}, &do.MiningSessionInfo{},
		&do.SocialTaskInfo{}, &do.TaskCompletionInfo{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUserProfileDAOImpl_Upsert(t *testing.T) {
	db := newTestDB(t)
	m := UserProfileDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		username := "miner01"
		info := &do.UserProfileInfo{
			ID:        "p-1",
			UserID:    "u-1",
			Username:  &username,
			UpdatedAt: "2026-01-02T03:04:05Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Error(err.Error())
		}
	})

	t.Run("replaces_existing_row", func(t *testing.T) {
		info := &do.UserProfileInfo{
			ID:         "p-1",
			UserID:     "u-1",
			TaskReward: 25,
			UpdatedAt:  "2026-01-03T00:00:00Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		got, err := m.GetByUserID(context.Background(), db, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if got.TaskReward != 25 {
			t.Errorf("TaskReward = %v, want 25", got.TaskReward)
		}
		if got.UpdatedAt != "2026-01-03T00:00:00Z" {
			t.Errorf("UpdatedAt = %v", got.UpdatedAt)
		}
	})

	t.Run("zero_mining_power_round_trips", func(t *testing.T) {
		info := &do.UserProfileInfo{
			ID:          "p-2",
			UserID:      "u-2",
			MiningPower: 0,
			UpdatedAt:   "2026-01-04T00:00:00Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		got, err := m.GetByUserID(context.Background(), db, "u-2")
		if err != nil {
			t.Fatal(err.Error())
		}
		if got.MiningPower != 0 {
			t.Errorf("MiningPower = %v, want 0", got.MiningPower)
		}
	})

	t.Run("nil_tx", func(t *testing.T) {
		err := m.Upsert(context.Background(), nil, &do.UserProfileInfo{})
		if !errors.Is(err, errcode.ErrNilGormDB) {
			t.Errorf("err = %v, want ErrNilGormDB", err)
		}
	})

	t.Run("nil_entity", func(t *testing.T) {
		err := m.Upsert(context.Background(), db, nil)
		if !errors.Is(err, errcode.ErrNilEntity) {
			t.Errorf("err = %v, want ErrNilEntity", err)
		}
	})
}

func TestUserProfileDAOImpl_GetByUserID(t *testing.T) {
	db := newTestDB(t)
	m := UserProfileDAOImpl{}

	t.Run("missing_row", func(t *testing.T) {
		_, err := m.GetByUserID(context.Background(), db, "nobody")
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("err = %v, want ErrRecordNotFound", err)
		}
	})
}

func TestUserProfileDAOImpl_DeleteByUserID(t *testing.T) {
	db := newTestDB(t)
	m := UserProfileDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		info := &do.UserProfileInfo{ID: "p-9", UserID: "u-9"}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		n, err := m.DeleteByUserID(context.Background(), db, "u-9")
		if err != nil {
			t.Fatal(err.Error())
		}
		if n != 1 {
			t.Errorf("rows deleted = %v, want 1", n)
		}
	})
}
