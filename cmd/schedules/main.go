// Command schedules manages the worker's Temporal schedules from the
// command line.
//
// Usage:
//
//	schedules create [--tenant <id>] [--file schedules.yaml]
//	schedules list
//	schedules delete <schedule-id>
//	schedules pause <schedule-id>
//	schedules unpause <schedule-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/config"
	"github.com/contextunity/contextworker/internal/schedules"
	"github.com/contextunity/contextworker/internal/temporalx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	c, err := temporalx.Dial(cfg.TemporalHost, "default", logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer c.Close()

	mgr := schedules.NewManager(c, logger)
	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		tenant := fs.String("tenant", cfg.TenantID, "tenant to create schedules for")
		file := fs.String("file", "", "optional YAML file of schedule definitions")
		_ = fs.Parse(os.Args[2:])

		defs := schedules.DefaultDefinitions()
		if *file != "" {
			defs, err = schedules.LoadDefinitions(*file)
			if err != nil {
				logger.Fatal("Failed to load schedule definitions", zap.Error(err))
			}
		}
		ids := mgr.CreateDefaults(ctx, defs, *tenant)
		fmt.Printf("Created %d schedules: %v\n", len(ids), ids)

	case "list":
		infos, err := mgr.List(ctx)
		if err != nil {
			logger.Fatal("Failed to list schedules", zap.Error(err))
		}
		for _, info := range infos {
			fmt.Printf("  %s: %s\n", info.ID, info.WorkflowType)
		}

	case "delete":
		requireID(mgr.Delete(ctx, argID()))
	case "pause":
		requireID(mgr.Pause(ctx, argID()))
	case "unpause":
		requireID(mgr.Unpause(ctx, argID()))
	default:
		usage()
		os.Exit(2)
	}
}

func argID() string {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	return os.Args[2]
}

func requireID(ok bool) {
	if !ok {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: schedules <create|list|delete|pause|unpause> [args]")
}
