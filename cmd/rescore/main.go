// Command rescore recomputes the denormalised ideas.vote_score column from
// the votes table. Without --apply it only reports ideas whose stored score
// has drifted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
	"github.com/ideahub/backend/pkg/logger"
	"github.com/joho/godotenv"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	days := flag.Int("days", 0, "only ideas created in the last N days (0 = all)")
	apply := flag.Bool("apply", false, "write the recomputed scores")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level)

	db, err := models.Open(cfg.Database.Driver, cfg.Database.DSN, gormlogger.Warn)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	since := time.Time{}
	if *days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -*days)
	}

	scores := services.NewScoreService(db)
	ctx := context.Background()

	drift, err := scores.Drift(ctx, since)
	if err != nil {
		fmt.Printf("Failed to compare scores: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d ideas with a stale score:\n\n", len(drift))
	for _, d := range drift {
		fmt.Printf("  %s  stored=%d computed=%d  %s\n", d.ID, d.Stored, d.Computed, d.Title)
	}

	if !*apply {
		fmt.Println("\nRun with --apply to write the recomputed scores.")
		return
	}

	n, err := scores.RescoreSince(ctx, since)
	if err != nil {
		fmt.Printf("Failed to rescore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nRescored %d ideas.\n", n)
}
