package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/store"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	shop := os.Getenv("SEED_SHOP")
	if shop == "" {
		shop = "demo-shop.myshopify.com"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("Failed to parse DB config: %v", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	bundles := &store.Bundles{Pool: pool}
	for _, b := range demoBundles(shop) {
		created, err := bundles.Create(ctx, b)
		if err != nil {
			log.Fatalf("Failed to seed bundle %q: %v", b.Title, err)
		}
		log.Printf("Seeded bundle %q (%s)", created.Title, created.ID)
	}

	log.Println("Seeding completed successfully!")
}

func demoBundles(shop string) []bundle.Bundle {
	price := decimal.RequireFromString("49.99")
	tenPercent := decimal.RequireFromString("10")
	fixedOff := decimal.RequireFromString("5.00")
	discount := bundle.DiscountPercentage

	return []bundle.Bundle{
		{
			Shop:   shop,
			Title:  "Starter Kit",
			Type:   bundle.TypeFixed,
			Status: bundle.StatusActive,
			Price:  &price,
			Items: []bundle.Item{
				{ProductID: "1001", VariantID: "2001", Title: "Shampoo", Quantity: 1, IsRequired: true, OriginalPrice: decimal.RequireFromString("30.00")},
				{ProductID: "1002", VariantID: "2002", Title: "Conditioner", Quantity: 1, IsRequired: true, OriginalPrice: decimal.RequireFromString("25.00")},
			},
		},
		{
			Shop:          shop,
			Title:         "Build Your Routine",
			Type:          bundle.TypeMixMatch,
			Status:        bundle.StatusActive,
			DiscountType:  &discount,
			DiscountValue: &tenPercent,
			MinProducts:   intPtr(2),
			MaxProducts:   intPtr(5),
			Items: []bundle.Item{
				{ProductID: "1003", VariantID: "2003", Title: "Face Wash", Quantity: 1, OriginalPrice: decimal.RequireFromString("12.00")},
				{ProductID: "1004", VariantID: "2004", Title: "Moisturizer", Quantity: 1, OriginalPrice: decimal.RequireFromString("18.00")},
				{ProductID: "1005", VariantID: "2005", Title: "Serum", Quantity: 1, OriginalPrice: decimal.RequireFromString("24.00")},
			},
		},
		{
			Shop:               shop,
			Title:              "Buy More Save More",
			Type:               bundle.TypeVolume,
			Status:             bundle.StatusActive,
			ApplyToSameProduct: true,
			Items: []bundle.Item{
				{ProductID: "1006", VariantID: "2006", Title: "Candle", Quantity: 1, OriginalPrice: decimal.RequireFromString("15.00")},
			},
			VolumeRules: []bundle.VolumeRule{
				{MinQuantity: 2, MaxQuantity: intPtr(4), DiscountType: bundle.DiscountPercentage, DiscountValue: tenPercent, Label: "10% off"},
				{MinQuantity: 5, DiscountType: bundle.DiscountFixedAmount, DiscountValue: fixedOff, Label: "€5 off"},
			},
		},
		{
			Shop:   shop,
			Title:  "Gift Box",
			Type:   bundle.TypeTiered,
			Status: bundle.StatusDraft,
			Items: []bundle.Item{
				{ProductID: "1007", VariantID: "2007", Title: "Soap", Quantity: 1, OriginalPrice: decimal.RequireFromString("8.00")},
				{ProductID: "1008", VariantID: "2008", Title: "Lotion", Quantity: 1, OriginalPrice: decimal.RequireFromString("14.00")},
				{ProductID: "1009", VariantID: "2009", Title: "Bath Bomb", Quantity: 1, OriginalPrice: decimal.RequireFromString("6.00")},
			},
			Tiers: []bundle.Tier{
				{Name: "Small", Price: decimal.RequireFromString("19.99"), ProductCount: 2},
				{Name: "Large", Price: decimal.RequireFromString("34.99"), ProductCount: 3, AllowedProducts: []string{"1007", "1008", "1009"}},
			},
		},
	}
}

func intPtr(v int) *int { return &v }
