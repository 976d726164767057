package dao

import (
	"context"
	"testing"

	"github.com/ekehi/ekehi-sync-server/dal/do"
)

func TestMiningSessionDAOImpl_Upsert(t *testing.T) {
	db := newTestDB(t)
	m := MiningSessionDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		info := &do.MiningSessionInfo{
			ID:        "s-1",
			UserID:    "u-1",
			CreatedAt: "2026-01-01T10:00:00Z",
			UpdatedAt: "2026-01-01T10:00:00Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Error(err.Error())
		}
	})

	t.Run("marks_session_completed", func(t *testing.T) {
		info := &do.MiningSessionInfo{
			ID:          "s-1",
			UserID:      "u-1",
			CoinsEarned: 12.5,
			ClicksMade:  42,
			Completed:   true,
			CreatedAt:   "2026-01-01T10:00:00Z",
			UpdatedAt:   "2026-01-01T11:00:00Z",
		}
		if err := m.Upsert(context.Background(), db, info); err != nil {
			t.Fatal(err.Error())
		}

		got, err := m.GetByID(context.Background(), db, "s-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if !got.Completed {
			t.Error("session should be completed")
		}
		if got.CoinsEarned != 12.5 {
			t.Errorf("CoinsEarned = %v, want 12.5", got.CoinsEarned)
		}
	})
}

func TestMiningSessionDAOImpl_GetByUserID(t *testing.T) {
	db := newTestDB(t)
	m := MiningSessionDAOImpl{}

	t.Run("orders_most_recent_first", func(t *testing.T) {
		sessions := []*do.MiningSessionInfo{
			{ID: "s-old", UserID: "u-1", CreatedAt: "2026-01-01T00:00:00Z"},
			{ID: "s-new", UserID: "u-1", CreatedAt: "2026-02-01T00:00:00Z"},
			{ID: "s-other", UserID: "u-2", CreatedAt: "2026-03-01T00:00:00Z"},
		}
		for _, s := range sessions {
			if err := m.Upsert(context.Background(), db, s); err != nil {
				t.Fatal(err.Error())
			}
		}

		infos, err := m.GetByUserID(context.Background(), db, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(infos) != 2 {
			t.Fatalf("len = %v, want 2", len(infos))
		}
		if infos[0].ID != "s-new" || infos[1].ID != "s-old" {
			t.Errorf("order = [%v %v], want [s-new s-old]", infos[0].ID, infos[1].ID)
		}

		num, err := m.GetSessionNum(context.Background(), db, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if num != 2 {
			t.Errorf("session num = %v, want 2", num)
		}
	})
}
