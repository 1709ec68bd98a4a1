// Command tokengen issues a team access token for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"codearena/internal/auth"
	"codearena/internal/platform/credential"
)

func main() {
	secret := flag.String("secret", os.Getenv("ARENA_JWT_SECRET"), "JWT signing secret")
	issuer := flag.String("issuer", "codearena", "JWT issuer")
	teamID := flag.String("team", "", "Team id to issue the token for")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	statePath := flag.String("state", "", "Also write the token to this CLI token state file")
	flag.Parse()

	token, err := auth.NewService(*secret, *issuer, nil).Issue(*teamID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
		os.Exit(1)
	}
	if *statePath != "" {
		st := credential.TokenState{
			AccessToken: token,
			TeamID:      *teamID,
			ExpiresAt:   time.Now().Add(*ttl),
		}
		if err := credential.SaveState(*statePath, st); err != nil {
			fmt.Fprintf(os.Stderr, "save token state failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Println(token)
}
