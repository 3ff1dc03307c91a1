// cmd/register-client/main.go
// Registers an OAuth client application and prints its credentials.
// The client secret is shown once and cannot be recovered.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"Xcrol/internal/config"
	"Xcrol/internal/core/oauth"
	"Xcrol/internal/core/users"
	"Xcrol/internal/db/migrations"
	postgresRepo "Xcrol/internal/db/postgres"
	redisCache "Xcrol/internal/db/redis"
)

type redirectList []string

func (l *redirectList) String() string { return strings.Join(*l, ",") }

func (l *redirectList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var redirects redirectList
	name := flag.String("name", "", "application name shown on the consent page (required)")
	description := flag.String("description", "", "short description of the application")
	logo := flag.String("logo", "", "logo URL")
	homepage := flag.String("homepage", "", "homepage URL")
	owner := flag.String("owner", "", "XCROL user id of the developer")
	verified := flag.Bool("verified", false, "mark the application as verified by XCROL")
	rotate := flag.String("rotate-secret", "", "issue a new secret for an existing client id instead of registering")
	flag.Var(&redirects, "redirect", "allowed redirect URI (repeatable)")
	flag.Parse()

	config.LoadDotEnv()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Go through the server's client cache so a rotated secret takes effect immediately
	clients, closeCache, err := withClientCache(ctx, postgresRepo.NewOAuthClientRepository(db), os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer closeCache()

	service := oauth.NewService(
		oauth.NewRepository(clients, postgresRepo.NewOAuthGrantRepository(db)),
		users.NewUserService(postgresRepo.NewUserRepository(db)),
	)

	if *rotate != "" {
		secret, err := service.RotateClientSecret(ctx, *rotate)
		if err != nil {
			log.Fatalf("Failed to rotate secret: %v", err)
		}
		fmt.Printf("client_id:     %s\n", *rotate)
		fmt.Printf("client_secret: %s\n", secret)
		return
	}

	if *name == "" || len(redirects) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, secret, err := service.RegisterClient(ctx, oauth.RegisterClientRequest{
		Name:         *name,
		Description:  *description,
		LogoURL:      *logo,
		HomepageURL:  *homepage,
		OwnerID:      *owner,
		RedirectURIs: redirects,
		Verified:     *verified,
	})
	if err != nil {
		log.Fatalf("Failed to register client: %v", err)
	}

	fmt.Printf("client_id:     %s\n", client.ID)
	fmt.Printf("client_secret: %s\n", secret)
	fmt.Printf("redirect_uris: %s\n", strings.Join(client.RedirectURIs, " "))
	fmt.Println("Store the secret now; it cannot be shown again.")
}

// withClientCache wraps clients in the Redis client cache when redisURL is set.
// Writes through the cache invalidate the entry the server would otherwise keep serving.
func withClientCache(ctx context.Context, clients oauth.ClientRepository, redisURL string) (oauth.ClientRepository, func(), error) {
	if redisURL == "" {
		return clients, func() {}, nil
	}
	rdb, err := redisCache.Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Printf("Failed to close redis: %v", err)
		}
	}
	return redisCache.NewClientCache(clients, rdb, 0), closeFn, nil
}
