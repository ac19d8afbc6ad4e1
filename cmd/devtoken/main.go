package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"pulsethread/internal/middleware"
)

// devtoken prints a bearer token for local testing. Without -user a random id is minted.
func main() {
	var (
		userFlag string
		ttlFlag  time.Duration
	)
	flag.StringVar(&userFlag, "user", "", "user id to put in the token subject (random UUID when empty)")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		exitWithError(errors.New("JWT_SECRET is required"))
	}
	issuer := strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	if issuer == "" {
		issuer = "pulsethread"
	}
	if ttlFlag <= 0 {
		exitWithError(fmt.Errorf("-ttl must be positive, got %s", ttlFlag))
	}

	user := strings.TrimSpace(userFlag)
	if user == "" {
		user = uuid.NewString()
	}
	token, err := middleware.SignToken(secret, issuer, user, ttlFlag)
	if err != nil {
		exitWithError(err)
	}
	fmt.Fprintf(os.Stderr, "user: %s\n", user)
	fmt.Println(token)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
