package dao

import (
	"context"
	"testing"

	"github.com/ekehi/ekehi-sync-server/dal/do"
)

func TestTaskCompletionDAOImpl_Upsert(t *testing.T) {
	db := newTestDB(t)
	m := TaskCompletionDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		info := &do.TaskCompletionInfo{
			ID:          "c-1",
			UserID:      "u-1",
			TaskID:      "t-1",
			Status:      "pending",
			CompletedAt: "2026-01-01T00:00:00Z",
			UpdatedAt:   "2026-01-01T00:00:00Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Error(err.Error())
		}
	})

	t.Run("second_claim_updates_not_duplicates", func(t *testing.T) {
		verifiedAt := "2026-01-02T00:00:00Z"
		info := &do.TaskCompletionInfo{
			ID:          "c-1b",
			UserID:      "u-1",
			TaskID:      "t-1",
			Status:      "verified",
			VerifiedAt:  &verifiedAt,
			CompletedAt: "2026-01-01T00:00:00Z",
			UpdatedAt:   verifiedAt,
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		infos, err := m.GetByUserID(context.Background(), db, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(infos) != 1 {
			t.Fatalf("len = %v, want 1", len(infos))
		}
		if infos[0].Status != "verified" {
			t.Errorf("Status = %v, want verified", infos[0].Status)
		}
	})
}

func TestTaskCompletionDAOImpl_ExistUserAndTask(t *testing.T) {
	db := newTestDB(t)
	m := TaskCompletionDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		info := &do.TaskCompletionInfo{
			ID:     "c-2",
			UserID: "u-2",
			TaskID: "t-2",
			Status: "pending",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		exist, err := m.ExistUserAndTask(context.Background(), db, "u-2", "t-2")
		if err != nil {
			t.Fatal(err.Error())
		}
		if !exist {
			t.Error("completion should exist")
		}

		exist, err = m.ExistUserAndTask(context.Background(), db, "u-2", "t-404")
		if err != nil {
			t.Fatal(err.Error())
		}
		if exist {
			t.Error("completion should not exist")
		}
	})
}
