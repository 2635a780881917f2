package service

import (
	"context"
	"sync"
	"time"

	"NPSEngine/internal/backend"
	"NPSEngine/pkg/errors"
)

// DiagnosisReport 一个活动此刻能不能发出去的体检结果
type DiagnosisReport struct {
	CampaignID   int64  `json:"campaign_id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	PeriodActive bool   `json:"period_active"`
	WindowValid  bool   `json:"window_valid"`
	WindowOpen   bool   `json:"window_open"`
	ChannelSet   bool   `json:"channel_set"`
	PendingCount int    `json:"pending_count"`

	// 阻止发送的原因清单，空表示现在就能发
	Problems []string `json:"problems"`
}

type DiagnoseService struct {
	backend Backend
	now     func() time.Time
}

var (
	diagnoseService *DiagnoseService
	diagnoseOnce    sync.Once
)

func Diagnose() *DiagnoseService {
	diagnoseOnce.Do(func() {
		diagnoseService = NewDiagnoseService(backend.GetClient())
	})
	return diagnoseService
}

func NewDiagnoseService(b Backend) *DiagnoseService {
	return &DiagnoseService{backend: b, now: time.Now}
}

// Run 生成活动诊断报告
func (s *DiagnoseService) Run(ctx context.Context, campaignID int64) (*DiagnosisReport, error) {
	c, err := s.backend.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.CampaignNotFound
	}

	now := s.now()
	report := &DiagnosisReport{
		CampaignID: c.ID,
		Name:       c.Name,
		Active:     c.Active,
		ChannelSet: c.ChannelID != "",
	}

	if !c.Active {
		report.Problems = append(report.Problems, "campaign is inactive")
	}
	if !report.ChannelSet {
		report.Problems = append(report.Problems, "campaign has no chat channel configured")
	}

	periodActive, err := CampaignPeriodActive(c, now)
	if err != nil {
		report.Problems = append(report.Problems, "date range is malformed")
	} else {
		report.PeriodActive = periodActive
		if !periodActive {
			report.Problems = append(report.Problems, "today is outside the campaign date range")
		}
	}

	open, err := CampaignWindowOpen(c, now)
	if err != nil {
		report.Problems = append(report.Problems, "time window is malformed")
	} else {
		report.WindowValid = true
		report.WindowOpen = open
		if !open {
			report.Problems = append(report.Problems, "current time is outside the sending window")
		}
	}

	pending, err := s.backend.CountPendingDeliveries(ctx, c.ID)
	if err == nil {
		report.PendingCount = pending
	}

	return report, nil
}
