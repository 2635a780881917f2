package service

import (
	"time"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
	"NPSEngine/utils"
)

// CampaignPeriodActive 活动的日期区间是否覆盖今天。只比较日历日，
// 两端都是闭区间，nil 表示不设界。
func CampaignPeriodActive(c *model.Campaign, now time.Time) (bool, error) {
	today := utils.DateOnly(now)

	if c.StartDate != nil {
		start, err := time.ParseInLocation("2006-01-02", *c.StartDate, now.Location())
		if err != nil {
			return false, errors.WindowMalformed
		}
		if today.Before(start) {
			return false, nil
		}
	}

	if c.EndDate != nil {
		end, err := time.ParseInLocation("2006-01-02", *c.EndDate, now.Location())
		if err != nil {
			return false, errors.WindowMalformed
		}
		if today.After(end) {
			return false, nil
		}
	}

	return true, nil
}

// CampaignWindowOpen 当前时刻是否落在活动允许发送的时段里。
// 用当天的分钟数比较，start > end 表示跨午夜（22:00~06:00 覆盖
// 23:30 和 05:00，不覆盖 12:00）。两端缺省或相等视为全天开放。
func CampaignWindowOpen(c *model.Campaign, now time.Time) (bool, error) {
	if c.StartTime == "" && c.EndTime == "" {
		return true, nil
	}
	if c.StartTime == "" || c.EndTime == "" {
		return false, errors.WindowMalformed
	}

	start, err := utils.MinuteOfDay(c.StartTime)
	if err != nil {
		return false, errors.WindowMalformed
	}
	end, err := utils.MinuteOfDay(c.EndTime)
	if err != nil {
		return false, errors.WindowMalformed
	}

	if start == end {
		return true, nil
	}

	minute := now.Hour()*60 + now.Minute()
	if start < end {
		return minute >= start && minute < end, nil
	}
	// 跨午夜
	return minute >= start || minute < end, nil
}

// NextWindowOpen 下一次时段开放的时刻，agendado_horario 的 eligible_at 用它。
// 窗口当前开放时返回 now 本身。
func NextWindowOpen(c *model.Campaign, now time.Time) (time.Time, error) {
	open, err := CampaignWindowOpen(c, now)
	if err != nil {
		return time.Time{}, err
	}
	if open {
		return now, nil
	}

	start, err := utils.MinuteOfDay(c.StartTime)
	if err != nil {
		return time.Time{}, errors.WindowMalformed
	}

	candidate := utils.DateOnly(now).Add(time.Duration(start) * time.Minute)
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate, nil
}
