package service

import (
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
)

// maxStreakWalk 限制回溯天数，防止异常数据导致无界扫描
const maxStreakWalk = 10000

// dateProbe 判断指定日期是否存在一条事件记录
type dateProbe func(day time.Time) (bool, error)

// walkStreak 从锚点日期起逐日向前回溯，统计不间断的连续天数。
// 锚点当天计为 1，遇到第一个空缺即停止；结果只依赖日志内容，
// 任意次数调用都返回相同值，是"当前连胜"的唯一事实来源。
func walkStreak(anchor time.Time, probe dateProbe) (int, error) {
	streak := 1
	for n := 1; n < maxStreakWalk; n++ {
		exists, err := probe(anchor.AddDate(0, 0, -n))
		if err != nil {
			return 0, err
		}
		if !exists {
			break
		}
		streak++
	}
	return streak, nil
}

// routineStreakAt 以指定锚点计算例行的连胜天数
func routineStreakAt(tx *gorm.DB, routineID uint, anchor time.Time) (int, error) {
	anchor = normalizeToDate(anchor)
	return walkStreak(anchor, func(day time.Time) (bool, error) {
		var count int64
		if err := tx.Model(&db.CompletionRecord{}).
			Where("routine_id = ? AND completed_on = ?", routineID, day).
			Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	})
}

// participantStreakAt 以指定锚点计算挑战参与者的打卡连胜
func participantStreakAt(tx *gorm.DB, challengeID, userID uint, anchor time.Time) (int, error) {
	anchor = normalizeToDate(anchor)
	return walkStreak(anchor, func(day time.Time) (bool, error) {
		var count int64
		if err := tx.Model(&db.ChallengeCheckin{}).
			Where("challenge_id = ? AND user_id = ? AND checkin_date = ?", challengeID, userID, day).
			Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	})
}

// scanRunStreaks 在按日期升序排列的记录上线性扫描，返回末段连胜与历史最长连胜。
// 用于全量重建，热路径上的增量更新走 walkStreak。
func scanRunStreaks(dates []time.Time) (current, longest int) {
	if len(dates) == 0 {
		return 0, 0
	}

	longest = 1
	current = 1

	for i := 1; i < len(dates); i++ {
		// 用 AddDate 推进日历日再比较，夏令时导致的 23/25 小时间隔不影响判定
		switch {
		case dates[i].Equal(dates[i-1].AddDate(0, 0, 1)):
			current++
			if current > longest {
				longest = current
			}
		case dates[i].Equal(dates[i-1]):
			// 同一天的重复记录，忽略
		default:
			current = 1
		}
	}

	return current, longest
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
