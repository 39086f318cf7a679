package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bookline/bookline-backend/internal/config"
	"github.com/bookline/bookline-backend/internal/database"
)

// Seeds a handful of consultants and open slots for local development.
func main() {
	var (
		consultants = flag.Int("consultants", 3, "Number of consultants to create")
		days        = flag.Int("days", 5, "Number of days of slots per consultant")
		perDay      = flag.Int("per-day", 4, "Slots per consultant per day")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := sqlx.Connect("postgres", database.GetDSN(cfg.Database))
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	ctx := context.Background()
	names := []string{"Dr. Achieng", "Dr. Kamau", "Dr. Otieno", "Dr. Wanjiru", "Dr. Mutiso"}

	for i := 0; i < *consultants; i++ {
		name := names[i%len(names)]
		specialty := fmt.Sprintf("General Consultation %d", i+1)

		var consultantID int
		err := db.GetContext(ctx, &consultantID, `
			INSERT INTO consultants (name, specialty)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET specialty = EXCLUDED.specialty
			RETURNING id`, name, specialty)
		if err != nil {
			log.Fatal("Failed to create consultant:", err)
		}

		created := 0
		for d := 1; d <= *days; d++ {
			date := time.Now().AddDate(0, 0, d).Format("2006-01-02")
			for s := 0; s < *perDay; s++ {
				start := fmt.Sprintf("%02d:00", 9+s*2)
				end := fmt.Sprintf("%02d:00", 10+s*2)
				_, err := db.ExecContext(ctx, `
					INSERT INTO available_slots (consultant_id, slot_date, start_time, end_time, is_booked)
					VALUES ($1, $2, $3, $4, FALSE)
					ON CONFLICT (consultant_id, slot_date, start_time) DO NOTHING`,
					consultantID, date, start, end)
				if err != nil {
					log.Fatal("Failed to create slot:", err)
				}
				created++
			}
		}
		fmt.Printf("Seeded %s (id=%d) with %d slots\n", name, consultantID, created)
	}
}
