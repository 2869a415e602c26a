package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/db"
)

var serviceTypes = []string{
	"checkup",
	"cleaning",
	"filling",
	"extraction",
	"root_canal",
	"orthodontics",
	"whitening",
	"implant_consult",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clinics (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS practitioners (
		id uuid PRIMARY KEY,
		clinic_id uuid NOT NULL REFERENCES clinics(id),
		name text NOT NULL,
		specialty text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		email text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS practitioner_services (
		practitioner_id uuid NOT NULL REFERENCES practitioners(id),
		clinic_id uuid NOT NULL REFERENCES clinics(id),
		service_type text NOT NULL,
		PRIMARY KEY (practitioner_id, clinic_id, service_type)
	)`,
	`CREATE TABLE IF NOT EXISTS availability_windows (
		id uuid PRIMARY KEY,
		practitioner_id uuid NOT NULL REFERENCES practitioners(id),
		clinic_id uuid NOT NULL REFERENCES clinics(id),
		day_of_week int NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		start_minute int NOT NULL,
		end_minute int NOT NULL,
		effective_from date NOT NULL,
		effective_until date,
		is_active boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL DEFAULT now(),
		CHECK (start_minute < end_minute)
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id uuid PRIMARY KEY,
		practitioner_id uuid NOT NULL REFERENCES practitioners(id),
		clinic_id uuid NOT NULL REFERENCES clinics(id),
		patient_id uuid NOT NULL REFERENCES patients(id),
		date date NOT NULL,
		start_minute int NOT NULL,
		duration_minutes int NOT NULL CHECK (duration_minutes > 0),
		status text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	// The storage half of the no-double-booking guarantee: at most one
	// occupying appointment per fixed-granularity slot.
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_occupying_slot_key
		ON appointments (practitioner_id, clinic_id, date, start_minute)
		WHERE status IN ('scheduled', 'confirmed', 'in_progress')`,
	`CREATE INDEX IF NOT EXISTS appointments_clinic_day_idx
		ON appointments (clinic_id, date)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id bigserial PRIMARY KEY,
		event_type text NOT NULL,
		appointment_id uuid,
		payload jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "seed").Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := createSchema(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("create schema")
	}
	logger.Info().Msg("schema ready")

	clinics, err := seedClinics(context.Background(), pool, 3)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed clinics")
	}
	if err := seedPractitioners(context.Background(), pool, clinics, 25); err != nil {
		logger.Fatal().Err(err).Msg("seed practitioners")
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func createSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Dental Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

// seedPractitioners creates practitioners plus their service offerings and a
// Monday-to-Friday 09:00-17:00 availability window effective from today.
func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, clinics []uuid.UUID, perClinic int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	effectiveFrom := time.Now().Format("2006-01-02")

	for _, clinicID := range clinics {
		for i := 0; i < perClinic; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			specialty := serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO practitioners (id, clinic_id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, clinicID, name, specialty)
			if err != nil {
				return err
			}

			// Every practitioner offers checkups plus their specialty.
			services := map[string]bool{"checkup": true, specialty: true}
			for svc := range services {
				_, err := tx.Exec(ctx, `
					INSERT INTO practitioner_services (practitioner_id, clinic_id, service_type)
					VALUES ($1, $2, $3)
				`, id, clinicID, svc)
				if err != nil {
					return err
				}
			}

			for dow := 1; dow <= 5; dow++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_windows
						(id, practitioner_id, clinic_id, day_of_week, start_minute, end_minute, effective_from, is_active, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, true, now())
				`, uuid.New(), id, clinicID, dow, 9*60, 17*60, effectiveFrom)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	return nil
}
