package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"creative-ai-studio/internal/config"
	"creative-ai-studio/internal/domain"
	"creative-ai-studio/internal/domain/model"
	pg "creative-ai-studio/internal/infra/db/postgres"
)

// Seeds a few accounts across tiers so the API can be exercised locally.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	accounts := pg.NewAccountRepo(pool)

	seed := []model.Account{
		{ID: "acct-free-demo", Tier: model.TierFree},
		{ID: "acct-starter-demo", Tier: model.TierStarter},
		{ID: "acct-pro-demo", Tier: model.TierPro},
		{ID: "acct-business-demo", Tier: model.TierBusiness},
	}

	for _, a := range seed {
		if _, err := accounts.FindByID(ctx, nil, a.ID); err == nil {
			fmt.Printf("exists: %s (%s)\n", a.ID, a.Tier)
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			log.Fatalf("lookup %s: %v", a.ID, err)
		}
		a.CreatedAt = time.Now().UTC()
		if err := accounts.Save(ctx, nil, &a); err != nil {
			log.Fatalf("seed %s: %v", a.ID, err)
		}
		fmt.Printf("seeded: %s (%s)\n", a.ID, a.Tier)
	}

	fmt.Println("seeding complete")
}
