package model

import "testing"

func TestConvertUserProfile(t *testing.T) {
	t.Run("optional_fields_roundtrip", func(t *testing.T) {
		p := &UserProfile{
			ID:             "p-1",
			UserID:         "u-1",
			Username:       "miner01",
			TaskReward:     10,
			MiningReward:   5,
			ReferralReward: 2.5,
			UpdatedAt:      "2026-01-01T00:00:00Z",
		}

		info := ConvertUserProfileToDO(p)
		if info.Username == nil || *info.Username != "miner01" {
			t.Errorf("Username = %v", info.Username)
		}
		// Unset optional fields become nil, not empty strings, so the
		// store can tell absent from blank.
		if info.Email != nil {
			t.Errorf("Email = %v, want nil", info.Email)
		}

		back := ConvertDOToUserProfile(info)
		if back.Username != "miner01" || back.Email != "" {
			t.Errorf("roundtrip = %+v", back)
		}
		if back.TotalCoins() != 17.5 {
			t.Errorf("TotalCoins = %v, want 17.5", back.TotalCoins())
		}
	})

	t.Run("nil_in_nil_out", func(t *testing.T) {
		if ConvertUserProfileToDO(nil) != nil {
			t.Error("nil profile should convert to nil")
		}
		if ConvertDOToUserProfile(nil) != nil {
			t.Error("nil row should convert to nil")
		}
	})
}

func TestConvertTaskCompletion(t *testing.T) {
	c := &TaskCompletion{
		ID:          "c-1",
		UserID:      "u-1",
		TaskID:      "t-1",
		Status:      CompletionVerified,
		VerifiedAt:  "2026-01-02T00:00:00Z",
		CompletedAt: "2026-01-01T00:00:00Z",
	}

	info := ConvertTaskCompletionToDO(c)
	if info.VerifiedAt == nil || *info.VerifiedAt != "2026-01-02T00:00:00Z" {
		t.Errorf("VerifiedAt = %v", info.VerifiedAt)
	}

	back := ConvertDOToTaskCompletion(info)
	if back.VerifiedAt != "2026-01-02T00:00:00Z" || back.Status != CompletionVerified {
		t.Errorf("roundtrip = %+v", back)
	}
}
