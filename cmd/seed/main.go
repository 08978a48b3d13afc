package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"commerce-access/internal/config"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	pg "commerce-access/internal/infra/db/postgres"
)

// seed writes a small demo catalog: a course with a VIP upsell and a bump product.
func main() {
	cfgPath := flag.String("config", os.Getenv("COMMERCE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg.Database.MaxConns = 4
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	products := pg.NewProductRepo(pool)

	existing, err := products.ListAll(ctx, repository.NoTX)
	if err != nil {
		log.Fatal().Err(err).Msg("list products")
	}
	if len(existing) > 0 {
		fmt.Printf("%d products already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s %q (price=%d %s, days=%s)\n", p.ID, p.Name, p.Price, p.Currency, days(p.DurationDays))
		}
		return
	}

	currency, now := cfg.Checkout.Currency, time.Now().UTC()
	seed := []*model.Product{
		{ID: "vip", Name: "VIP Membership", Active: true, Price: 19_900, Currency: currency},
		{ID: "workbook", Name: "Course Workbook", Active: true, Price: 900, Currency: currency, DurationDays: model.Days(365)},
		{
			ID: "course", Name: "Video Course", Active: true, Price: 4_900, Currency: currency, DurationDays: model.Days(30),
			Oto: &model.OtoConfig{
				TargetProductID: "vip",
				Discount:        model.Discount{Kind: model.DiscountPercent, Value: 40},
				WindowMinutes:   cfg.Oto.DefaultWindowMinutes,
			},
		},
	}
	for _, p := range seed {
		p.CreatedAt = now
		if err := products.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatal().Err(err).Str("product_id", p.ID).Msg("save product")
		}
		fmt.Printf("seeded: %s %q (price=%d %s, days=%s)\n", p.ID, p.Name, p.Price, p.Currency, days(p.DurationDays))
	}
	fmt.Println("Seeding complete.")
}

func days(d *int) string {
	if d == nil {
		return "unlimited"
	}
	return fmt.Sprint(*d)
}
