package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/therapy-booking/internal/db"
)

type windowSpec struct {
	start string
	end   string
}

// Weekday windows handed to every seeded practitioner.
var workingWindows = []windowSpec{
	{start: "09:00", end: "13:00"},
	{start: "15:00", end: "19:00"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	_ = godotenv.Load()
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedPractitioners(context.Background(), pool, faker, 40); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, faker, 3000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Clinical Psychology",
		"Psychotherapy",
		"Couples Therapy",
		"Child and Adolescent Therapy",
		"Cognitive Behavioral Therapy",
		"Family Therapy",
		"Grief Counseling",
		"Addiction Counseling",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[faker.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, email, phone, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, "Dr. "+faker.Name(), faker.Email(), "+52"+faker.Phone(), spec)
		if err != nil {
			return err
		}

		if err := seedWindows(ctx, tx, id); err != nil {
			return err
		}

		if faker.Number(0, 9) == 0 {
			start := time.Now().AddDate(0, 0, faker.Number(7, 60))
			end := start.AddDate(0, 0, faker.Number(0, 10))
			_, err := tx.Exec(ctx, `
				INSERT INTO blackouts (id, practitioner_id, start_date, end_date, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), id, start.Format(time.DateOnly), end.Format(time.DateOnly), "vacation")
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("practitioners seeded")
	return nil
}

func seedWindows(ctx context.Context, tx pgx.Tx, practitionerID uuid.UUID) error {
	for weekday := time.Monday; weekday <= time.Friday; weekday++ {
		for _, w := range workingWindows {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (id, practitioner_id, weekday, start_time, end_time, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), practitionerID, int(weekday), w.start, w.end)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			var phone *string
			if faker.Bool() {
				p := "+52" + faker.Phone()
				phone = &p
			}
			batch.Queue(`
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), faker.Name(), faker.Email(), phone)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
