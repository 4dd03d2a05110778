package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/sunsavvy/internal/solar"
)

var (
	_ solar.SessionStore = (*MemoryStore)(nil)
	_ solar.RecordStore  = (*MemoryStore)(nil)
	_ solar.RateStore    = (*MemoryStore)(nil)
	_ solar.SessionStore = (*RedisSessionStore)(nil)
	_ solar.RecordStore  = (*PostgresStore)(nil)
	_ solar.RateStore    = (*PostgresStore)(nil)
)

func sampleSession(owner string, now time.Time) *solar.Session {
	s := solar.NewSession(owner, now)
	s.SetEnergy(solar.EnergyResult{MonthlyKWh: 400}, now)
	return s
}

func sampleRecord(owner, id string, created time.Time, savings float64) solar.EstimationRecord {
	return solar.EstimationRecord{
		ID:               id,
		Owner:            owner,
		Latitude:         33.6,
		Longitude:        73.0,
		City:             "Rawalpindi",
		State:            "Punjab",
		MonthlyKWh:       400,
		RoofLengthM:      10,
		RoofWidthM:       10,
		RoofAreaSqM:      100,
		Irradiance:       5.2,
		IrradianceSource: "nasa-power",
		PanelCount:       40,
		SystemCapacityKW: 16,
		TotalCost:        18550,
		AnnualSavings:    savings,
		PaybackYears:     6.39,
		ROIPercent:       291.2,
		AnnualEnergyKWh:  25812.8,
		CreatedAt:        created,
	}
}

// --- MemoryStore ---

func TestMemoryStore_SessionRoundTripIsACopy(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	ms := NewMemoryStore(time.Hour, 0, clock)

	_, err := ms.Load(ctx, "owner-1")
	require.ErrorIs(t, err, solar.ErrSessionNotFound)

	sess := sampleSession("owner-1", clock.Now())
	require.NoError(t, ms.Save(ctx, sess))

	loaded, err := ms.Load(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Energy)
	assert.Equal(t, 400.0, loaded.Energy.MonthlyKWh)

	loaded.Energy.MonthlyKWh = 1
	again, err := ms.Load(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 400.0, again.Energy.MonthlyKWh, "mutating a loaded session must not change the store")

	taken, err := ms.Take(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 400.0, taken.Energy.MonthlyKWh)

	_, err = ms.Load(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
	_, err = ms.Take(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
}

func TestMemoryStore_TakeSkipsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	ms := NewMemoryStore(time.Hour, 0, clock)

	require.NoError(t, ms.Save(ctx, sampleSession("owner-1", clock.Now())))
	clock.Advance(2 * time.Hour)

	_, err := ms.Take(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
}

func TestMemoryStore_SessionExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	ms := NewMemoryStore(30*time.Minute, 0, clock)

	require.NoError(t, ms.Save(ctx, sampleSession("stale", clock.Now())))
	clock.Advance(20 * time.Minute)
	require.NoError(t, ms.Save(ctx, sampleSession("fresh", clock.Now())))
	clock.Advance(15 * time.Minute)

	_, err := ms.Load(ctx, "stale")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)

	removed, err := ms.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = ms.Load(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStore_RecordsNewestFirstWithRetention(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore(0, 2, nil)
	base := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ms.SaveRecord(ctx, sampleRecord("o", "r1", base, 100)))
	require.NoError(t, ms.SaveRecord(ctx, sampleRecord("o", "r2", base.Add(time.Hour), 200)))
	require.NoError(t, ms.SaveRecord(ctx, sampleRecord("o", "r3", base.Add(2*time.Hour), 300)))
	require.NoError(t, ms.SaveRecord(ctx, sampleRecord("other", "x1", base, 999)))

	recs, err := ms.ListRecords(ctx, "o", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r3", recs[0].ID)
	assert.Equal(t, "r2", recs[1].ID)

	limited, err := ms.ListRecords(ctx, "o", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	sum, err := ms.Summary(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 500.0, sum.TotalAnnualSavings, 1e-9)

	_, err = ms.GetRecord(ctx, "o", "r1")
	assert.ErrorIs(t, err, solar.ErrRecordNotFound)
	_, err = ms.GetRecord(ctx, "o", "x1")
	assert.ErrorIs(t, err, solar.ErrRecordNotFound, "records are scoped by owner")
}

func TestMemoryStore_Rates(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore(0, 0, nil)
	require.NoError(t, ms.UpsertProvider(ctx, solar.ServiceProvider{ID: "solar-co", Name: "Solar Co", CostPerWatt: 1.1}))
	require.NoError(t, ms.UpsertProvider(ctx, solar.ServiceProvider{ID: "solar-co", Name: "Solar Co", CostPerWatt: 0.95}))
	require.NoError(t, ms.UpsertProvider(ctx, solar.ServiceProvider{ID: "acme", Name: "Acme", CostPerWatt: 1.2}))

	list, err := ms.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "acme", list[0].ID)
	assert.Equal(t, 0.95, list[1].CostPerWatt)

	rate, ok, err := ms.CostPerWatt(context.Background(), "solar-co")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.95, rate)

	_, ok, err = ms.CostPerWatt(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- RedisSessionStore ---

func TestRedisSessionStore_RoundTripAndTTL(t *testing.T) {
	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	rs := NewRedisSessionStore(redisClient, 10*time.Minute)
	require.NoError(t, rs.Ping(ctx))

	_, err := rs.Load(ctx, "owner-1")
	require.ErrorIs(t, err, solar.ErrSessionNotFound)

	require.NoError(t, rs.Save(ctx, sampleSession("owner-1", time.Now().UTC())))
	assert.True(t, redisServer.Exists("sunsavvy:session:owner-1"))
	assert.Equal(t, 10*time.Minute, redisServer.TTL("sunsavvy:session:owner-1"))

	loaded, err := rs.Load(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, solar.StateEmpty, loaded.State())
	require.NotNil(t, loaded.Energy)
	assert.Equal(t, 400.0, loaded.Energy.MonthlyKWh)

	redisServer.FastForward(11 * time.Minute)
	_, err = rs.Load(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
}

func TestRedisSessionStore_TakeOnce(t *testing.T) {
	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	rs := NewRedisSessionStore(redisClient, time.Minute)
	require.NoError(t, rs.Save(ctx, sampleSession("owner-1", time.Now().UTC())))

	taken, err := rs.Take(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", taken.Owner)
	assert.False(t, redisServer.Exists(sessionKey("owner-1")))

	_, err = rs.Take(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
	_, err = rs.Load(ctx, "owner-1")
	assert.ErrorIs(t, err, solar.ErrSessionNotFound)
}

func TestRedisSessionStore_CorruptPayload(t *testing.T) {
	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	defer redisClient.Close()

	require.NoError(t, redisServer.Set("sunsavvy:session:owner-1", "{not json"))

	_, err := NewRedisSessionStore(redisClient, time.Minute).Load(context.Background(), "owner-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, solar.ErrSessionNotFound))
}

// --- PostgresStore ---

func recordRowColumns() []string {
	return []string{
		"id", "owner", "latitude", "longitude", "address", "city", "state",
		"monthly_kwh", "roof_length_m", "roof_width_m", "roof_area_sqm", "irradiance", "irradiance_source",
		"panel_count", "system_capacity_kw", "total_cost", "annual_savings", "payback_years", "roi_percent",
		"annual_energy_kwh", "created_at",
	}
}

func addRecordRow(rows *pgxmock.Rows, r solar.EstimationRecord) *pgxmock.Rows {
	return rows.AddRow(
		r.ID, r.Owner, r.Latitude, r.Longitude, r.Address, r.City, r.State,
		r.MonthlyKWh, r.RoofLengthM, r.RoofWidthM, r.RoofAreaSqM, r.Irradiance, r.IrradianceSource,
		r.PanelCount, r.SystemCapacityKW, r.TotalCost, r.AnnualSavings, r.PaybackYears, r.ROIPercent,
		r.AnnualEnergyKWh, r.CreatedAt,
	)
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS estimation_records").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, NewPostgresStore(mockPool).EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecord(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	rec := sampleRecord("o", "7b0f3f4e-3f7e-4a55-9c39-0d5b2b6d8f10", time.Now().UTC(), 3097.54)
	mockPool.ExpectExec("INSERT INTO estimation_records").
		WithArgs(
			rec.ID, rec.Owner, rec.Latitude, rec.Longitude, rec.Address, rec.City, rec.State,
			rec.MonthlyKWh, rec.RoofLengthM, rec.RoofWidthM, rec.RoofAreaSqM, rec.Irradiance, rec.IrradianceSource,
			rec.PanelCount, rec.SystemCapacityKW, rec.TotalCost, rec.AnnualSavings, rec.PaybackYears, rec.ROIPercent,
			rec.AnnualEnergyKWh, rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresStore(mockPool).SaveRecord(context.Background(), rec))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	rec := sampleRecord("o", "r1", time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC), 3097.54)
	mockPool.ExpectQuery("FROM estimation_records WHERE owner").
		WithArgs("o", "r1").
		WillReturnRows(addRecordRow(pgxmock.NewRows(recordRowColumns()), rec))
	mockPool.ExpectQuery("FROM estimation_records WHERE owner").
		WithArgs("o", "missing").
		WillReturnRows(pgxmock.NewRows(recordRowColumns()))

	ps := NewPostgresStore(mockPool)
	got, err := ps.GetRecord(context.Background(), "o", "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = ps.GetRecord(context.Background(), "o", "missing")
	assert.ErrorIs(t, err, solar.ErrRecordNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	base := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(recordRowColumns())
	addRecordRow(rows, sampleRecord("o", "r2", base.Add(time.Hour), 200))
	addRecordRow(rows, sampleRecord("o", "r1", base, 100))

	mockPool.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $2")).
		WithArgs("o", 5).
		WillReturnRows(rows)

	recs, err := NewPostgresStore(mockPool).ListRecords(context.Background(), "o", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COALESCE(SUM(annual_savings), 0)")).
		WithArgs("o").
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(3, 4500.5))

	sum, err := NewPostgresStore(mockPool).Summary(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Count)
	assert.InDelta(t, 4500.5, sum.TotalAnnualSavings, 1e-9)
}

func TestPostgresStore_CostPerWatt(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT cost_per_watt FROM service_providers").
		WithArgs("solar-co").
		WillReturnRows(pgxmock.NewRows([]string{"cost_per_watt"}).AddRow(0.95))
	mockPool.ExpectQuery("SELECT cost_per_watt FROM service_providers").
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"cost_per_watt"}))
	mockPool.ExpectQuery("SELECT cost_per_watt FROM service_providers").
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	ps := NewPostgresStore(mockPool)

	rate, ok, err := ps.CostPerWatt(context.Background(), "solar-co")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.95, rate)

	_, ok, err = ps.CostPerWatt(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ps.CostPerWatt(context.Background(), "broken")
	assert.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProvider(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("INSERT INTO service_providers").
		WithArgs("solar-co", "Solar Co", 0.95).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := solar.ServiceProvider{ID: "solar-co", Name: "Solar Co", CostPerWatt: 0.95}
	require.NoError(t, NewPostgresStore(mockPool).UpsertProvider(context.Background(), p))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ListProviders(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT id, name, cost_per_watt FROM service_providers ORDER BY id").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "cost_per_watt"}).
			AddRow("acme", "Acme", 1.2).
			AddRow("solar-co", "Solar Co", 0.95))

	list, err := NewPostgresStore(mockPool).ListProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []solar.ServiceProvider{
		{ID: "acme", Name: "Acme", CostPerWatt: 1.2},
		{ID: "solar-co", Name: "Solar Co", CostPerWatt: 0.95},
	}, list)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
