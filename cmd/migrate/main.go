package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"pulsethread/internal/db"
	"pulsethread/internal/infra"
)

func main() {
	var printFlag bool
	flag.BoolVar(&printFlag, "print", false, "print the schema instead of applying it")
	flag.Parse()

	if printFlag {
		fmt.Print(db.Schema())
		return
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := db.Migrate(ctx, runner); err != nil {
		exitWithError(err)
	}
	logger.Info().Msg("schema applied")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
