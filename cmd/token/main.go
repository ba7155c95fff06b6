// Package main mints a bearer token for a job owner, for local use against the API.
//
//	token -owner 3f1c... [-ttl 24h]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/newsanalyzer/internal/auth"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ownerFlag := fs.String("owner", "", "owner UUID; a random one is generated when empty")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	owner := uuid.New()
	if *ownerFlag != "" {
		id, err := uuid.Parse(*ownerFlag)
		if err != nil {
			return fmt.Errorf("parse owner: %w", err)
		}
		owner = id
	}

	tok, err := auth.NewJWT(secret, *ttl).Sign(owner)
	if err != nil {
		return err
	}
	fmt.Printf("owner: %s\ntoken: %s\n", owner, tok)
	return nil
}
