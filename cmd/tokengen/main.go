// Command tokengen issues development access tokens for an account address.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/course-cert-api/internal/service"
	"github.com/noah-isme/course-cert-api/pkg/config"
	"github.com/noah-isme/course-cert-api/pkg/logger"
)

func main() {
	address := flag.String("address", "", "account address the token is bound to")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_EXPIRATION)")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -address 0x... [-ttl 1h]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	expiry := cfg.JWT.Expiration
	if *ttl > 0 {
		expiry = *ttl
	}
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: expiry,
		Issuer:            cfg.JWT.Issuer,
	})

	token, err := auth.IssueToken(*address)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token.AccessToken)
	fmt.Fprintf(os.Stderr, "expires at %s\n", token.ExpiresAt.Format(time.RFC3339))
}
