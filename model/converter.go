package model

import "github.com/ekehi/ekehi-sync-server/dal/do"

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ConvertUserProfileToDO(p *UserProfile) *do.UserProfileInfo {
	if p == nil {
		return nil
	}
	return &do.UserProfileInfo{
		ID:               p.ID,
		UserID:           p.UserID,
		Username:         strOrNil(p.Username),
		Email:            strOrNil(p.Email),
		TaskReward:       p.TaskReward,
		MiningReward:     p.MiningReward,
		ReferralReward:   p.ReferralReward,
		MiningPower:      p.MiningPower,
		CurrentStreak:    p.CurrentStreak,
		LongestStreak:    p.LongestStreak,
		LastLoginDate:    strOrNil(p.LastLoginDate),
		ReferralCode:     strOrNil(p.ReferralCode),
		ReferredBy:       strOrNil(p.ReferredBy),
		TotalReferrals:   p.TotalReferrals,
		MaxDailyEarnings: p.MaxDailyEarnings,
		TodayEarnings:    p.TodayEarnings,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func ConvertDOToUserProfile(info *do.UserProfileInfo) *UserProfile {
	if info == nil {
		return nil
	}
	return &UserProfile{
		ID:               info.ID,
		UserID:           info.UserID,
		Username:         strOrEmpty(info.Username),
		Email:            strOrEmpty(info.Email),
		TaskReward:       info.TaskReward,
		MiningReward:     info.MiningReward,
		ReferralReward:   info.ReferralReward,
		MiningPower:      info.MiningPower,
		CurrentStreak:    info.CurrentStreak,
		LongestStreak:    info.LongestStreak,
		LastLoginDate:    strOrEmpty(info.LastLoginDate),
		ReferralCode:     strOrEmpty(info.ReferralCode),
		ReferredBy:       strOrEmpty(info.ReferredBy),
		TotalReferrals:   info.TotalReferrals,
		MaxDailyEarnings: info.MaxDailyEarnings,
		TodayEarnings:    info.TodayEarnings,
		CreatedAt:        info.CreatedAt,
		UpdatedAt:        info.UpdatedAt,
	}
}

func ConvertMiningSessionToDO(s *MiningSession) *do.MiningSessionInfo {
	if s == nil {
		return nil
	}
	return &do.MiningSessionInfo{
		ID:              s.ID,
		UserID:          s.UserID,
		CoinsEarned:     s.CoinsEarned,
		ClicksMade:      s.ClicksMade,
		SessionDuration: s.SessionDuration,
		Completed:       s.Completed,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func ConvertDOToMiningSession(info *do.MiningSessionInfo) *MiningSession {
	if info == nil {
		return nil
	}
	return &MiningSession{
		ID:              info.ID,
		UserID:          info.UserID,
		CoinsEarned:     info.CoinsEarned,
		ClicksMade:      info.ClicksMade,
		SessionDuration: info.SessionDuration,
		Completed:       info.Completed,
		CreatedAt:       info.CreatedAt,
		UpdatedAt:       info.UpdatedAt,
	}
}

func ConvertSocialTaskToDO(t *SocialTask) *do.SocialTaskInfo {
	if t == nil {
		return nil
	}
	return &do.SocialTaskInfo{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Platform:           t.Platform,
		TaskType:           t.TaskType,
		RewardCoins:        t.RewardCoins,
		ActionURL:          t.ActionURL,
		VerificationMethod: t.VerificationMethod,
		IsActive:           t.IsActive,
		SortOrder:          t.SortOrder,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func ConvertDOToSocialTask(info *do.SocialTaskInfo) *SocialTask {
	if info == nil {
		return nil
	}
	return &SocialTask{
		ID:                 info.ID,
		Title:              info.Title,
		Description:        info.Description,
		Platform:           info.Platform,
		TaskType:           info.TaskType,
		RewardCoins:        info.RewardCoins,
		ActionURL:          info.ActionURL,
		VerificationMethod: info.VerificationMethod,
		IsActive:           info.IsActive,
		SortOrder:          info.SortOrder,
		CreatedAt:          info.CreatedAt,
		UpdatedAt:          info.UpdatedAt,
	}
}

func ConvertTaskCompletionToDO(c *TaskCompletion) *do.TaskCompletionInfo {
	if c == nil {
		return nil
	}
	return &do.TaskCompletionInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		TaskID:      c.TaskID,
		Status:      c.Status,
		Proof:       c.Proof,
		CompletedAt: c.CompletedAt,
		VerifiedAt:  strOrNil(c.VerifiedAt),
		UpdatedAt:   c.UpdatedAt,
	}
}

func ConvertDOToTaskCompletion(info *do.TaskCompletionInfo) *TaskCompletion {
	if info == nil {
		return nil
	}
	return &TaskCompletion{
		ID:          info.ID,
		UserID:      info.UserID,
		TaskID:      info.TaskID,
		Status:      info.Status,
		Proof:       info.Proof,
		CompletedAt: info.CompletedAt,
		VerifiedAt:  strOrEmpty(info.VerifiedAt),
		UpdatedAt:   info.UpdatedAt,
	}
}
