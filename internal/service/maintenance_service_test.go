package service

import (
	"testing"

	"github.com/routinelog/internal/db"
)

func TestRebuildRoutineRepairsCorruptedAggregates(t *testing.T) {
	user, cleanup := setupServiceTestDB(t)
	defer cleanup()

	routine := createTestRoutine(t, user.ID, "晨跑")
	completions := NewCompletionService(db.DB)

	for _, d := range []string{"2026-01-10", "2026-01-11", "2026-01-12"} {
		if _, err := completions.Record(CompletionInput{RoutineID: routine.ID, Date: day(d)}); err != nil {
			t.Fatalf("Record(%s) returned error: %v", d, err)
		}
	}

	// 绕过服务层把聚合写坏
	if err := db.DB.Model(&db.Routine{}).Where("id = ?", routine.ID).
		Updates(map[string]interface{}{
			"current_streak":    99,
			"longest_streak":    1,
			"total_completions": 0,
		}).Error; err != nil {
		t.Fatalf("failed to corrupt aggregates: %v", err)
	}

	if err := NewMaintenanceService(db.DB).RebuildRoutine(routine.ID); err != nil {
		t.Fatalf("RebuildRoutine returned error: %v", err)
	}

	var rebuilt db.Routine
	if err := db.DB.First(&rebuilt, routine.ID).Error; err != nil {
		t.Fatalf("failed to reload routine: %v", err)
	}
	if rebuilt.CurrentStreak != 3 || rebuilt.LongestStreak != 3 || rebuilt.TotalCompletions != 3 {
		t.Fatalf("rebuild produced %d/%d/%d, want 3/3/3",
			rebuilt.CurrentStreak, rebuilt.LongestStreak, rebuilt.TotalCompletions)
	}
	if rebuilt.LastCompletedOn == nil || !rebuilt.LastCompletedOn.Equal(day("2026-01-12")) {
		t.Fatalf("unexpected rebuilt anchor: %v", rebuilt.LastCompletedOn)
	}
}

func TestRebuildRoutineWithGappedLog(t *testing.T) {
	user, cleanup := setupServiceTestDB(t)
	defer cleanup()

	routine := createTestRoutine(t, user.ID, "阅读")
	completions := NewCompletionService(db.DB)

	// 前段 4 天，断档后尾段 2 天
	for _, d := range []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04", "2026-01-10", "2026-01-11"} {
		if _, err := completions.Record(CompletionInput{RoutineID: routine.ID, Date: day(d)}); err != nil {
			t.Fatalf("Record(%s) returned error: %v", d, err)
		}
	}

	if err := NewMaintenanceService(db.DB).RebuildRoutine(routine.ID); err != nil {
		t.Fatalf("RebuildRoutine returned error: %v", err)
	}

	var rebuilt db.Routine
	if err := db.DB.First(&rebuilt, routine.ID).Error; err != nil {
		t.Fatalf("failed to reload routine: %v", err)
	}
	if rebuilt.CurrentStreak != 2 {
		t.Fatalf("expected current streak 2, got %d", rebuilt.CurrentStreak)
	}
	if rebuilt.LongestStreak != 4 {
		t.Fatalf("expected longest streak 4 from replay, got %d", rebuilt.LongestStreak)
	}
}

func TestRebuildUserRefreshesRollups(t *testing.T) {
	user, cleanup := setupServiceTestDB(t)
	defer cleanup()

	routine := createTestRoutine(t, user.ID, "冥想")
	if _, err := NewCompletionService(db.DB).Record(CompletionInput{RoutineID: routine.ID, Date: day("2026-01-10")}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if err := db.DB.Model(&db.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"current_streak": 42, "total_completions": 42}).Error; err != nil {
		t.Fatalf("failed to corrupt rollups: %v", err)
	}

	if err := NewMaintenanceService(db.DB).RebuildUser(user.ID); err != nil {
		t.Fatalf("RebuildUser returned error: %v", err)
	}

	var rebuilt db.User
	if err := db.DB.First(&rebuilt, user.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if rebuilt.CurrentStreak != 1 || rebuilt.TotalCompletions != 1 {
		t.Fatalf("unexpected rollups after rebuild: %d/%d",
			rebuilt.CurrentStreak, rebuilt.TotalCompletions)
	}
}

func TestRebuildCountersFromLogs(t *testing.T) {
	user, cleanup := setupServiceTestDB(t)
	defer cleanup()

	group, err := NewGroupService(db.DB).Create(user.ID, GroupInput{Name: "晨跑小组"})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	if err := db.DB.Model(&db.Group{}).Where("id = ?", group.ID).
		Update("member_count", 77).Error; err != nil {
		t.Fatalf("failed to corrupt member count: %v", err)
	}

	if err := NewMaintenanceService(db.DB).RebuildCounters(); err != nil {
		t.Fatalf("RebuildCounters returned error: %v", err)
	}

	var rebuilt db.Group
	if err := db.DB.First(&rebuilt, group.ID).Error; err != nil {
		t.Fatalf("failed to reload group: %v", err)
	}
	if rebuilt.MemberCount != 1 {
		t.Fatalf("expected member count 1 after rebuild, got %d", rebuilt.MemberCount)
	}
}

func TestRebuildParticipantsReplaysCheckins(t *testing.T) {
	user, cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewChallengeService(db.DB)
	challenge := createTestChallenge(t, "早起挑战")
	if _, err := svc.Join(challenge.ID, user.ID); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	for _, d := range []string{"2026-02-01", "2026-02-02"} {
		if _, err := svc.CheckIn(challenge.ID, user.ID, day(d), ""); err != nil {
			t.Fatalf("CheckIn(%s) returned error: %v", d, err)
		}
	}

	if err := db.DB.Model(&db.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", challenge.ID, user.ID).
		Updates(map[string]interface{}{"checkin_count": 0, "current_streak": 0}).Error; err != nil {
		t.Fatalf("failed to corrupt participant stats: %v", err)
	}

	if err := NewMaintenanceService(db.DB).RebuildParticipants(challenge.ID); err != nil {
		t.Fatalf("RebuildParticipants returned error: %v", err)
	}

	var rebuilt db.ChallengeParticipant
	if err := db.DB.Where("challenge_id = ? AND user_id = ?", challenge.ID, user.ID).
		First(&rebuilt).Error; err != nil {
		t.Fatalf("failed to reload participant: %v", err)
	}
	if rebuilt.CheckinCount != 2 || rebuilt.CurrentStreak != 2 {
		t.Fatalf("unexpected stats after rebuild: count=%d streak=%d",
			rebuilt.CheckinCount, rebuilt.CurrentStreak)
	}
}
