package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"NPSEngine/internal/service"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/response"
)

// GetCampaignDiagnosis 活动发送能力体检
// GET /v1/campaigns/:id/diagnosis
func GetCampaignDiagnosis(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(ctx, c, errors.CampaignNotFound)
		return
	}

	report, err := service.Diagnose().Run(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, report)
}
