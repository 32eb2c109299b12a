// Package main 提供数据库迁移管理的命令行工具
// 基于 golang-migrate，支持向上/向下迁移、迁移到指定版本、强制版本与状态查询
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MorseWayne/apparel_shop/internal/config"
	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/logger"
)

const usageExamples = `
Examples:
  # Run all pending migrations
  ./migrate -action=up

  # Rollback 1 migration
  ./migrate -action=down -steps=1

  # Migrate to specific version
  ./migrate -action=version -target=3

  # Show current version and dirty flag
  ./migrate -action=status

  # Force migration version (clear dirty state)
  ./migrate -action=force -target=0
`

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version, force, status")
		steps  = flag.Int("steps", 1, "Number of steps for down migration")
		target = flag.Uint("target", 0, "Target version for version or force migration")
		dir    = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -action=[up|down|version|force|status] [options]\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprint(flag.CommandLine.Output(), usageExamples)
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	migrationsDir := cfg.Migrations.Dir
	if *dir != "" {
		migrationsDir = *dir
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database", "error", err)
		}
	}()

	switch *action {
	case "up":
		lg.Info("running up migrations...")
		if err := db.RunMigrations(migrationsDir); err != nil {
			lg.Sugar().Fatalw("failed to run up migrations", "error", err)
		}
		lg.Info("up migrations completed successfully")

	case "down":
		lg.Sugar().Infow("running down migrations", "steps", *steps)
		if err := db.MigrateDown(migrationsDir, *steps); err != nil {
			lg.Sugar().Fatalw("failed to run down migrations", "error", err)
		}
		lg.Info("down migrations completed successfully")

	case "version":
		if *target == 0 {
			lg.Fatal("target version must be specified for version migration")
		}
		lg.Sugar().Infow("migrating to version", "target", *target)
		if err := db.MigrateToVersion(migrationsDir, *target); err != nil {
			lg.Sugar().Fatalw("failed to migrate to version", "error", err)
		}
		lg.Info("version migration completed successfully")

	case "force":
		// 版本 0 表示重置到无迁移状态
		lg.Sugar().Warnw("forcing migration version - this will clear dirty state", "target", *target)
		if err := db.ForceMigrationVersion(migrationsDir, *target); err != nil {
			lg.Sugar().Fatalw("failed to force migration version", "error", err)
		}
		lg.Info("migration version forced successfully")

	case "status":
		version, dirty, err := db.MigrationStatus(migrationsDir)
		if err != nil {
			lg.Sugar().Fatalw("failed to read migration status", "error", err)
		}
		lg.Sugar().Infow("migration status", "version", version, "dirty", dirty)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
