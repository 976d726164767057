package dao

import (
	"context"
	"testing"

	"github.com/ekehi/ekehi-sync-server/dal/do"
)

func TestSocialTaskDAOImpl_GetActive(t *testing.T) {
	db := newTestDB(t)
	m := SocialTaskDAOImpl{}

	t.Run("filters_and_orders", func(t *testing.T) {
		tasks := []*do.SocialTaskInfo{
			{ID: "t-2", Title: "Follow on X", IsActive: true, SortOrder: 2},
			{ID: "t-1", Title: "Join Telegram", IsActive: true, SortOrder: 1},
			{ID: "t-3", Title: "Old campaign", IsActive: false, SortOrder: 0},
		}
		for _, task := range tasks {
			if err := m.Upsert(context.Background(), db, task); err != nil {
				t.Fatal(err.Error())
			}
		}

		infos, err := m.GetActive(context.Background(), db)
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(infos) != 2 {
			t.Fatalf("len = %v, want 2", len(infos))
		}
		if infos[0].ID != "t-1" || infos[1].ID != "t-2" {
			t.Errorf("order = [%v %v], want [t-1 t-2]", infos[0].ID, infos[1].ID)
		}
	})

	t.Run("inactive_persists_as_inactive", func(t *testing.T) {
		task := &do.SocialTaskInfo{ID: "t-4", Title: "Retired campaign", IsActive: false}
		if err := m.Upsert(context.Background(), db, task); err != nil {
			t.Fatal(err.Error())
		}

		info, err := m.GetByID(context.Background(), db, "t-4")
		if err != nil {
			t.Fatal(err.Error())
		}
		if info.IsActive {
			t.Error("IsActive = true, want false")
		}
	})
}

func TestSocialTaskDAOImpl_Delete(t *testing.T) {
	db := newTestDB(t)
	m := SocialTaskDAOImpl{}

	t.Run("test_1", func(t *testing.T) {
		task := &do.SocialTaskInfo{ID: "t-9", Title: "Share post"}
		if err := m.Upsert(context.Background(), db, task); err != nil {
			t.Fatal(err.Error())
		}

		n, err := m.Delete(context.Background(), db, "t-9")
		if err != nil {
			t.Fatal(err.Error())
		}
		if n != 1 {
			t.Errorf("rows deleted = %v, want 1", n)
		}
	})
}
