package main

import (
	"context"
	"log"
	"os"

	"gasopper/access"
	"gasopper/auth"
	"gasopper/db"
	"gasopper/directory"
	"gasopper/lead"
	"gasopper/opportunity"
	"gasopper/station"
	"gasopper/stats"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	users := directory.NewRepository(pool)
	leads := lead.NewRepository(pool)
	opps := opportunity.NewRepository(pool)
	stations := station.NewRepository(pool)
	sessions := auth.NewSessionRepository(pool)

	policy := access.NewPolicy(users)

	authService := auth.NewService(users, sessions, jwtSecret)
	directoryService := directory.NewService(users, policy, sessions)
	leadService := lead.NewService(pool, leads, opps, policy)
	opportunityService := opportunity.NewService(pool, opps, stations, policy)
	statsService := stats.NewService(leadService, opportunityService)

	log.Printf("services ready: auth=%t directory=%t leads=%t opportunities=%t stats=%t",
		authService != nil, directoryService != nil, leadService != nil,
		opportunityService != nil, statsService != nil)
}
