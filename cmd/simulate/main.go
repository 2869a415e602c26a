// Command simulate drives concurrent booking traffic against a running
// api-server to demonstrate the no-double-booking guarantee: a same-slot
// race must produce exactly one created appointment, and an auto-fill storm
// must never overlap two appointments for one practitioner.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mohammedabdelnaser3/Clear-Dental-Clinic-sub007/internal/db"
)

type simConfig struct {
	apiBaseURL  string
	postgresDSN string
	workers     int
	date        string
}

type tally struct {
	created   int64
	conflicts int64
	other     int64
}

func (t *tally) record(status int) {
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&t.created, 1)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		atomic.AddInt64(&t.conflicts, 1)
	default:
		atomic.AddInt64(&t.other, 1)
	}
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "simulate").Logger()

	cfg := simConfig{
		apiBaseURL:  envOr("API_BASE_URL", "http://localhost:8080"),
		postgresDSN: os.Getenv("POSTGRES_DSN"),
		workers:     16,
		date:        time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
	}
	if cfg.postgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.workers)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.postgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	var practitionerID, clinicID uuid.UUID
	err = pool.QueryRow(context.Background(), `
		SELECT id, clinic_id FROM practitioners ORDER BY created_at LIMIT 1
	`).Scan(&practitionerID, &clinicID)
	if err != nil {
		logger.Fatal().Err(err).Msg("load practitioner (run cmd/seed first)")
	}

	patients, err := loadPatients(context.Background(), pool, cfg.workers*2)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	if len(patients) < cfg.workers {
		logger.Fatal().Int("patients", len(patients)).Msg("not enough patients seeded")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	logger.Info().
		Int("workers", cfg.workers).
		Str("date", cfg.date).
		Stringer("practitioner_id", practitionerID).
		Msg("phase 1: same-slot race")

	race := runSameSlotRace(client, cfg, practitionerID, clinicID, patients)
	logger.Info().
		Int64("created", race.created).
		Int64("conflicts", race.conflicts).
		Int64("other", race.other).
		Msg("same-slot race finished")
	if race.created != 1 {
		logger.Error().Int64("created", race.created).Msg("INVARIANT VIOLATED: expected exactly one winner")
	} else {
		logger.Info().Msg("invariant held: exactly one winner")
	}

	logger.Info().Int("workers", cfg.workers).Msg("phase 2: auto-fill storm")
	storm := runAutoFillStorm(client, cfg, practitionerID, clinicID, patients)
	logger.Info().
		Int64("created", storm.created).
		Int64("conflicts", storm.conflicts).
		Int64("other", storm.other).
		Msg("auto-fill storm finished")

	overlaps, err := countOverlaps(context.Background(), pool, practitionerID, cfg.date)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify overlaps")
	}
	if overlaps > 0 {
		logger.Error().Int("overlaps", overlaps).Msg("INVARIANT VIOLATED: overlapping occupying appointments")
	} else {
		logger.Info().Msg("invariant held: no overlapping occupying appointments")
	}
}

func runSameSlotRace(client *http.Client, cfg simConfig, practitionerID, clinicID uuid.UUID, patients []uuid.UUID) *tally {
	var t tally
	var wg sync.WaitGroup

	start := make(chan struct{})
	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start

			body, _ := json.Marshal(map[string]any{
				"practitioner_id":  practitionerID.String(),
				"clinic_id":        clinicID.String(),
				"patient_id":       patientID.String(),
				"date":             cfg.date,
				"start":            "14:00",
				"duration_minutes": 30,
			})
			t.record(post(client, cfg.apiBaseURL+"/appointments", body))
		}(patients[i])
	}

	close(start)
	wg.Wait()
	return &t
}

func runAutoFillStorm(client *http.Client, cfg simConfig, practitionerID, clinicID uuid.UUID, patients []uuid.UUID) *tally {
	var t tally
	var wg sync.WaitGroup

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()

			// Jitter spreads arrivals like real traffic would.
			time.Sleep(time.Duration(gofakeit.Number(0, 250)) * time.Millisecond)

			body, _ := json.Marshal(map[string]any{
				"mode":             "first_available",
				"practitioner_id":  practitionerID.String(),
				"clinic_id":        clinicID.String(),
				"patient_id":       patientID.String(),
				"date":             cfg.date,
				"duration_minutes": 30,
			})
			t.record(post(client, cfg.apiBaseURL+"/appointments/autofill", body))
		}(patients[(cfg.workers+i)%len(patients)])
	}

	wg.Wait()
	return &t
}

func post(client *http.Client, url string, body []byte) int {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// countOverlaps asks the database directly whether any two occupying
// appointments for the practitioner overlap on the date.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, practitionerID uuid.UUID, date string) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.practitioner_id = b.practitioner_id
		 AND a.clinic_id = b.clinic_id
		 AND a.date = b.date
		 AND a.id < b.id
		 AND a.start_minute < b.start_minute + b.duration_minutes
		 AND b.start_minute < a.start_minute + a.duration_minutes
		WHERE a.practitioner_id = $1
		  AND a.date = $2
		  AND a.status IN ('scheduled', 'confirmed', 'in_progress')
		  AND b.status IN ('scheduled', 'confirmed', 'in_progress')
	`, practitionerID, date).Scan(&n)
	return n, err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
