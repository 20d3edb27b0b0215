// Command issuetoken mints a staff access token for the cart routes
// that require the admin or promoter role.
//
//	go run ./cmd/issuetoken -user 42 -role promoter
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

func main() {
	user := flag.String("user", "", "staff user id (required)")
	role := flag.String("role", utils.RolePromoter, "admin or promoter")
	flag.Parse()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *role != utils.RoleAdmin && *role != utils.RolePromoter {
		log.Fatalf("unknown role %q", *role)
	}
	cfg, err := config.LoadToken()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, *user, *role, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(tok.Token)
}
