package main

import (
	"fmt"
	"log"
	"time"

	"showtix/internal/seats"
	"showtix/internal/shared/config"
	"showtix/internal/shared/database"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Showtix Database Seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in reverse dependency order.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"payment_dead_letters",
		"payments",
		"reservation_seats",
		"reservations",
		"idempotency_records",
		"seats",
		"shows",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit().Error
}

// SeedAll creates a handful of shows with full seat maps, sized to make
// contention easy to produce with load tools.
func (s *Seeder) SeedAll() error {
	shows := []struct {
		title string
		rows  int
		cols  int
		price float64
	}{
		{"Midnight Run Tour", 10, 20, 120},
		{"Orchestra Gala", 8, 15, 85},
		{"Indie Night", 5, 10, 45},
	}

	for i, plan := range shows {
		show := &seats.Show{
			Title:    plan.title,
			StartsAt: time.Now().AddDate(0, 1, i),
		}
		if err := s.db.PostgreSQL.Create(show).Error; err != nil {
			return fmt.Errorf("failed to create show %q: %w", plan.title, err)
		}

		var seatRows []seats.Seat
		for row := 0; row < plan.rows; row++ {
			for col := 1; col <= plan.cols; col++ {
				seatRows = append(seatRows, seats.Seat{
					ShowID: show.ID,
					Label:  fmt.Sprintf("%c%d", 'A'+row, col),
					Price:  plan.price,
					Status: seats.SeatAvailable,
				})
			}
		}
		if err := s.db.PostgreSQL.CreateInBatches(seatRows, 200).Error; err != nil {
			return fmt.Errorf("failed to create seats for %q: %w", plan.title, err)
		}

		fmt.Printf("  Created show %q with %d seats\n", plan.title, len(seatRows))
	}

	return nil
}
