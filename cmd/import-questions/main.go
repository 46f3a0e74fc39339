// Package main imports YAML question packs into the question bank.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cory-johannsen/classquest/internal/config"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	"github.com/cory-johannsen/classquest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and environment")
	dir := flag.String("dir", "", "import every *.yaml pack in this directory")
	dryRun := flag.Bool("dry-run", false, "validate packs without writing to the database")
	flag.Parse()

	paths := flag.Args()
	if *dir != "" {
		matches, err := filepath.Glob(filepath.Join(*dir, "*.yaml"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: import-questions [-config <file>] [-dir <dir>] [-dry-run] [pack.yaml ...]")
		os.Exit(1)
	}

	start := time.Now()
	var questions []*quiz.Question
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", p, err)
			os.Exit(1)
		}
		qs, err := quiz.LoadPack(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", p, err)
			os.Exit(1)
		}
		questions = append(questions, qs...)
	}

	if *dryRun {
		fmt.Printf("validated %d questions from %d packs\n", len(questions), len(paths))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database, "import-questions")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Repositories().Questions.Upsert(ctx, questions); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d questions in %s\n", len(questions), time.Since(start).Round(time.Millisecond))
}
