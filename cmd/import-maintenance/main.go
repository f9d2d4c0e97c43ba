// Command import-maintenance removes finished import jobs older than the
// retention window. Intended to run from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"site-analytics-api/config"
	"site-analytics-api/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitDB()

	var (
		days   int
		dryRun bool
	)

	flag.IntVar(&days, "days", 30, "delete completed, failed and cancelled jobs older than this many days")
	flag.BoolVar(&dryRun, "dry-run", false, "report what would be deleted without writing to the database")
	flag.Parse()

	if days <= 0 {
		log.Fatal("days must be greater than 0")
	}

	jobs := services.NewImportJobService(services.NewImportJobStore(nil))

	if dryRun {
		log.Printf("dry run: would delete terminal jobs older than %d days", days)
		return
	}

	deleted, err := jobs.CleanupOldJobs(context.Background(), days)
	if err != nil {
		log.Fatalf("import cleanup failed: %v", err)
	}

	fmt.Printf("Deleted %d import jobs older than %d days\n", deleted, days)
}
