// Command retention runs one episodic memory retention pass from the
// command line, outside the scheduled workflow.
//
// Usage:
//
//	retention [--tenant default] [--days 30] [--batch 100] [--distill] [--dry-run]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/brain"
	"github.com/contextunity/contextworker/internal/config"
	"github.com/contextunity/contextworker/internal/jobs"
)

func main() {
	tenant := flag.String("tenant", "default", "tenant to clean up")
	days := flag.Int("days", 30, "delete episodes older than this many days")
	batch := flag.Int("batch", 100, "max episodes to process per batch")
	distill := flag.Bool("distill", false, "distill facts before deleting")
	dryRun := flag.Bool("dry-run", false, "report only, delete nothing")
	endpoint := flag.String("brain", "", "Brain endpoint (defaults to configured)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	brainAddr := cfg.BrainEndpoint
	if *endpoint != "" {
		brainAddr = *endpoint
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	api, err := brain.Dial(brainAddr, tokens.BrainServiceToken, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Brain", zap.Error(err))
	}
	defer api.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := jobs.RunRetention(ctx, api, jobs.RetentionParams{
		TenantID:  *tenant,
		Days:      *days,
		BatchSize: *batch,
		Distill:   *distill,
		DryRun:    *dryRun,
	}, logger)
	if err != nil {
		logger.Fatal("Retention run failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
