// Copyright 2026 The Keyfold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// One-shot token cleanup. The server runs the same sweep on a schedule;
// this command exists for cron-style deployments and manual reclamation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/observability/logger"
	"github.com/keyfold/keyfold/internal/store/postgres"
	"github.com/keyfold/keyfold/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName + "-cleanup",
	})

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	auditLogger := audit.NewSlogLogger()
	refreshManager := token.NewManager(postgres.NewRefreshTokenRepository(db), cfg.Token.RefreshTTL, auditLogger)
	denylist := token.NewDenylist(postgres.NewRevokedTokenRepository(db))

	janitor := token.NewJanitor(refreshManager, denylist, cfg.Token.CleanupInterval)
	if err := janitor.Sweep(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Cleanup sweep finished.")
}
