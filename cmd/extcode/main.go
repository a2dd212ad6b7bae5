package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"extcode/internal/app"
)

func main() {
	configPath := flag.String("config", "", "Batch file describing the evaluations to run")
	artifacts := flag.String("artifacts", "artifacts", "Artifact output directory")
	dbPath := flag.String("db", "artifacts/extcode.db", "SQLite database path")
	flag.Parse()

	// A missing .env is fine; variables already in the environment win.
	_ = godotenv.Load()

	if *configPath == "" {
		log.Fatalf("missing -config")
	}

	cfgFile, err := filepath.Abs(*configPath)
	if err != nil {
		log.Fatalf("failed to resolve config path: %v", err)
	}

	artifactRoot, err := filepath.Abs(*artifacts)
	if err != nil {
		log.Fatalf("failed to resolve artifact path: %v", err)
	}

	dbFile, err := filepath.Abs(*dbPath)
	if err != nil {
		log.Fatalf("failed to resolve db path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0o755); err != nil {
		log.Fatalf("failed to create db directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.Command{
		ConfigPath:  cfgFile,
		ArtifactDir: artifactRoot,
		DBPath:      dbFile,
	}

	result, err := cmd.Run(ctx)
	if err != nil {
		if result.RunID != "" {
			fmt.Printf("Run %s finished with status %s\n", result.RunID, result.Status)
		}
		log.Fatalf("run failed: %v", err)
	}

	fmt.Printf("Run %s finished with status %s\n", result.RunID, result.Status)
	if result.Summary != "" {
		fmt.Println(result.Summary)
	}
}
