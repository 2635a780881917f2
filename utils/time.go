package utils

import (
	"fmt"
	"time"
)

// MinuteOfDay 把 HH:MM[:SS] 转成当天的分钟数（0~1439）
func MinuteOfDay(timeStr string) (int, error) {
	parsed, err := parseClock(timeStr)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// DateOnly 截断到当天零点，活跃日期区间只比较日历日
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseClock(timeStr string) (time.Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, timeStr); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid clock format: %q", timeStr)
}
