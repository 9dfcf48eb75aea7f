package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/makehive/marketplace/internal/auth"
	"github.com/makehive/marketplace/internal/domain/user"
)

func main() {
	var (
		secret string
		issuer string
		userID string
		role   string
		ttl    time.Duration
	)

	flag.StringVar(&secret, "secret", "", "HS256 signing secret (or MAKEHIVE_AUTH_SECRET env)")
	flag.StringVar(&issuer, "issuer", "", "token issuer (or MAKEHIVE_AUTH_ISSUER env)")
	flag.StringVar(&userID, "user", "", "user id the token is issued for")
	flag.StringVar(&role, "role", string(user.RoleUser), "role claim: user or admin")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if secret == "" {
		secret = os.Getenv("MAKEHIVE_AUTH_SECRET")
	}
	if issuer == "" {
		issuer = os.Getenv("MAKEHIVE_AUTH_ISSUER")
	}
	if secret == "" {
		slog.Error("secret is required: set --secret or MAKEHIVE_AUTH_SECRET")
		os.Exit(1)
	}
	if userID == "" {
		slog.Error("user id is required: set --user")
		os.Exit(1)
	}
	r := user.Role(role)
	if r != user.RoleUser && r != user.RoleAdmin {
		slog.Error("unknown role", slog.String("role", role))
		os.Exit(1)
	}

	token, err := auth.NewSigner([]byte(secret), issuer).Sign(userID, r, ttl)
	if err != nil {
		slog.Error("sign failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("issued token",
		slog.String("user", userID),
		slog.String("role", role),
		slog.Time("expires", time.Now().Add(ttl)),
	)
	fmt.Println(token)
}
