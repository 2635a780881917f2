package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"NPSEngine/internal/backend"
	"NPSEngine/internal/service"
	"NPSEngine/pkg/logger"
)

// 活动发送能力体检的命令行入口，运营排查"为什么没发出去"用

func main() {
	campaignID := flag.Int64("campaign", 0, "campaign id to diagnose")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	if *campaignID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: diagnose -campaign <id>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := backend.Init(ctx); err != nil {
		logger.Logger.Fatal("Failed to authenticate against backend API", zap.Error(err))
	}

	report, err := service.Diagnose().Run(ctx, *campaignID)
	if err != nil {
		logger.Logger.Fatal("Diagnosis failed",
			zap.Int64("campaign_id", *campaignID),
			zap.Error(err))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Logger.Fatal("Failed to encode report", zap.Error(err))
	}

	fmt.Println(string(out))

	if len(report.Problems) > 0 {
		os.Exit(1)
	}
}
