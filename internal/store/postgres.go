package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/i474232898/sunsavvy/internal/solar"
)

// DBPool is the subset of *pgxpool.Pool the record store needs.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists finalized estimations and service provider rates.
type PostgresStore struct {
	db DBPool
}

func NewPostgresStore(db DBPool) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS estimation_records (
	id                 UUID PRIMARY KEY,
	owner              TEXT NOT NULL,
	latitude           DOUBLE PRECISION NOT NULL,
	longitude          DOUBLE PRECISION NOT NULL,
	address            TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	monthly_kwh        DOUBLE PRECISION NOT NULL,
	roof_length_m      DOUBLE PRECISION NOT NULL,
	roof_width_m       DOUBLE PRECISION NOT NULL,
	roof_area_sqm      DOUBLE PRECISION NOT NULL,
	irradiance         DOUBLE PRECISION NOT NULL,
	irradiance_source  TEXT NOT NULL,
	panel_count        INTEGER NOT NULL,
	system_capacity_kw DOUBLE PRECISION NOT NULL,
	total_cost         DOUBLE PRECISION NOT NULL,
	annual_savings     DOUBLE PRECISION NOT NULL,
	payback_years      DOUBLE PRECISION NOT NULL,
	roi_percent        DOUBLE PRECISION NOT NULL,
	annual_energy_kwh  DOUBLE PRECISION NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS estimation_records_owner_created_idx
	ON estimation_records (owner, created_at DESC);
CREATE TABLE IF NOT EXISTS service_providers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	cost_per_watt DOUBLE PRECISION NOT NULL CHECK (cost_per_watt > 0)
);`

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const recordColumns = `id::text, owner, latitude, longitude, address, city, state,
	monthly_kwh, roof_length_m, roof_width_m, roof_area_sqm, irradiance, irradiance_source,
	panel_count, system_capacity_kw, total_cost, annual_savings, payback_years, roi_percent,
	annual_energy_kwh, created_at`

func (s *PostgresStore) SaveRecord(ctx context.Context, rec solar.EstimationRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO estimation_records (
			id, owner, latitude, longitude, address, city, state,
			monthly_kwh, roof_length_m, roof_width_m, roof_area_sqm, irradiance, irradiance_source,
			panel_count, system_capacity_kw, total_cost, annual_savings, payback_years, roi_percent,
			annual_energy_kwh, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		rec.ID, rec.Owner, rec.Latitude, rec.Longitude, rec.Address, rec.City, rec.State,
		rec.MonthlyKWh, rec.RoofLengthM, rec.RoofWidthM, rec.RoofAreaSqM, rec.Irradiance, rec.IrradianceSource,
		rec.PanelCount, rec.SystemCapacityKW, rec.TotalCost, rec.AnnualSavings, rec.PaybackYears, rec.ROIPercent,
		rec.AnnualEnergyKWh, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert estimation record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, owner, id string) (solar.EstimationRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM estimation_records WHERE owner = $1 AND id::text = $2`,
		owner, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return solar.EstimationRecord{}, solar.ErrRecordNotFound
	}
	if err != nil {
		return solar.EstimationRecord{}, fmt.Errorf("get estimation record: %w", err)
	}
	return rec, nil
}

// ListRecords returns the owner's records, newest first. limit <= 0 returns all.
func (s *PostgresStore) ListRecords(ctx context.Context, owner string, limit int) ([]solar.EstimationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM estimation_records WHERE owner = $1 ORDER BY created_at DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list estimation records: %w", err)
	}
	defer rows.Close()

	var records []solar.EstimationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan estimation record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimation records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Summary(ctx context.Context, owner string) (solar.RecordSummary, error) {
	var sum solar.RecordSummary
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(annual_savings), 0) FROM estimation_records WHERE owner = $1`,
		owner,
	).Scan(&sum.Count, &sum.TotalAnnualSavings)
	if err != nil {
		return solar.RecordSummary{}, fmt.Errorf("summarize estimation records: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) CostPerWatt(ctx context.Context, providerID string) (float64, bool, error) {
	var rate float64
	err := s.db.QueryRow(ctx, `SELECT cost_per_watt FROM service_providers WHERE id = $1`, providerID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup provider rate: %w", err)
	}
	return rate, true, nil
}

// UpsertProvider registers or updates a service provider's cost per watt.
func (s *PostgresStore) UpsertProvider(ctx context.Context, p solar.ServiceProvider) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO service_providers (id, name, cost_per_watt) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, cost_per_watt = EXCLUDED.cost_per_watt`,
		p.ID, p.Name, p.CostPerWatt)
	if err != nil {
		return fmt.Errorf("upsert provider rate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]solar.ServiceProvider, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, cost_per_watt FROM service_providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query service providers: %w", err)
	}
	defer rows.Close()

	var providers []solar.ServiceProvider
	for rows.Next() {
		var p solar.ServiceProvider
		if err := rows.Scan(&p.ID, &p.Name, &p.CostPerWatt); err != nil {
			return nil, fmt.Errorf("scan service provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service providers: %w", err)
	}
	return providers, nil
}

func scanRecord(row pgx.Row) (solar.EstimationRecord, error) {
	var rec solar.EstimationRecord
	err := row.Scan(
		&rec.ID, &rec.Owner, &rec.Latitude, &rec.Longitude, &rec.Address, &rec.City, &rec.State,
		&rec.MonthlyKWh, &rec.RoofLengthM, &rec.RoofWidthM, &rec.RoofAreaSqM, &rec.Irradiance, &rec.IrradianceSource,
		&rec.PanelCount, &rec.SystemCapacityKW, &rec.TotalCost, &rec.AnnualSavings, &rec.PaybackYears, &rec.ROIPercent,
		&rec.AnnualEnergyKWh, &rec.CreatedAt,
	)
	return rec, err
}
