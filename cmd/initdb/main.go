// Command initdb clears the database and recreates the schema.
// Every user and post is lost.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/blog/internal/config"
	sqliteRepo "github.com/sakif/blog/internal/repository/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.ConfigPathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database",
			slog.String("path", cfg.DBPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Reset(context.Background()); err != nil {
		slog.Error("failed to reset database", slog.String("error", err.Error()))
		db.Close()
		os.Exit(1)
	}

	fmt.Println("Initialized the database.")
}
