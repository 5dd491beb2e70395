package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nutrilog"
)

const schema = `
CREATE TABLE IF NOT EXISTS food_entries (
	id          BIGSERIAL PRIMARY KEY,
	entry_date  DATE NOT NULL,
	name        TEXT NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL CHECK (quantity > 0),
	unit        TEXT NOT NULL CHECK (unit IN ('count', 'gram', 'milliliter')),
	energy_kcal DOUBLE PRECISION,
	protein_g   DOUBLE PRECISION,
	fat_g       DOUBLE PRECISION,
	carbs_g     DOUBLE PRECISION,
	fiber_g     DOUBLE PRECISION,
	source      TEXT NOT NULL CHECK (source IN ('lookup', 'estimate', 'barcode')),
	barcode     TEXT,
	approximate BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((source = 'barcode') = (barcode IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS food_entries_date_idx ON food_entries (entry_date, created_at);

CREATE TABLE IF NOT EXISTS daily_metrics (
	metric_date  DATE PRIMARY KEY,
	active_kcal  DOUBLE PRECISION,
	resting_kcal DOUBLE PRECISION,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS meal_presets (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL CHECK (btrim(name) <> ''),
	entries    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS meal_presets_name_idx ON meal_presets (lower(name));
`

const entryColumns = `id, entry_date, created_at, name, quantity, unit,
	energy_kcal, protein_g, fat_g, carbs_g, fiber_g, source, barcode, approximate`

// Postgres is the Repository backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

// Connect opens a pool for cfg, checks it and makes sure the tables exist.
func Connect(ctx context.Context, cfg nutrilog.StoreConfig) (*Postgres, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	p, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("STORE: connected to postgres", "max_conns", poolCfg.MaxConns)
	return p, nil
}

// NewPostgres wraps an existing pool and initializes the schema.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{db: pool}, nil
}

func (p *Postgres) Close() { p.db.Close() }

func (p *Postgres) PersistEntries(ctx context.Context, day time.Time, entries []nutrilog.ResolvedEntry) ([]int64, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	day = dateOnly(day)
	ids := make([]int64, len(entries))
	for i, e := range entries {
		err := tx.QueryRow(ctx, `
			INSERT INTO food_entries
				(entry_date, name, quantity, unit, energy_kcal, protein_g, fat_g, carbs_g, fiber_g, source, barcode, approximate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`,
			day, e.Name, e.Quantity, string(e.Unit),
			e.EnergyKcal, e.ProteinG, e.FatG, e.CarbsG, e.FiberG,
			string(e.Source), nullable(e.Barcode), e.Approximate,
		).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit entries: %w", err)
	}
	return ids, nil
}

func (p *Postgres) SumEntries(ctx context.Context, day time.Time) (nutrilog.DailyNutritionSummary, error) {
	day = dateOnly(day)
	sum := nutrilog.DailyNutritionSummary{Date: day}

	err := p.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(energy_kcal), 0),
			COALESCE(SUM(protein_g), 0),
			COALESCE(SUM(fat_g), 0),
			COALESCE(SUM(carbs_g), 0),
			COALESCE(SUM(fiber_g), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE energy_kcal IS NULL)
		FROM food_entries
		WHERE entry_date = $1
	`, day).Scan(
		&sum.TotalEnergyKcal, &sum.TotalProteinG, &sum.TotalFatG, &sum.TotalCarbsG, &sum.TotalFiberG,
		&sum.EntryCount, &sum.MissingEnergyCount,
	)
	if err != nil {
		return sum, fmt.Errorf("sum entries for %s: %w", day.Format(time.DateOnly), err)
	}
	return sum, nil
}

func (p *Postgres) DailySums(ctx context.Context, from, to time.Time) ([]nutrilog.DailyNutritionSummary, error) {
	rows, err := p.db.Query(ctx, `
		SELECT
			entry_date,
			COALESCE(SUM(energy_kcal), 0),
			COALESCE(SUM(protein_g), 0),
			COALESCE(SUM(fat_g), 0),
			COALESCE(SUM(carbs_g), 0),
			COALESCE(SUM(fiber_g), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE energy_kcal IS NULL)
		FROM food_entries
		WHERE entry_date BETWEEN $1 AND $2
		GROUP BY entry_date
		ORDER BY entry_date
	`, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("query daily sums: %w", err)
	}
	defer rows.Close()

	var out []nutrilog.DailyNutritionSummary
	for rows.Next() {
		var s nutrilog.DailyNutritionSummary
		if err := rows.Scan(
			&s.Date, &s.TotalEnergyKcal, &s.TotalProteinG, &s.TotalFatG, &s.TotalCarbsG, &s.TotalFiberG,
			&s.EntryCount, &s.MissingEnergyCount,
		); err != nil {
			return nil, fmt.Errorf("scan daily sum: %w", err)
		}
		s.Date = dateOnly(s.Date)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) Entries(ctx context.Context, day time.Time) ([]nutrilog.LoggedFoodEntry, error) {
	return p.EntriesBetween(ctx, day, day)
}

func (p *Postgres) EntriesBetween(ctx context.Context, from, to time.Time) ([]nutrilog.LoggedFoodEntry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM food_entries
		WHERE entry_date BETWEEN $1 AND $2
		ORDER BY entry_date, created_at, id
	`, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make([]nutrilog.LoggedFoodEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteMostRecentEntry(ctx context.Context, day time.Time) (nutrilog.LoggedFoodEntry, bool, error) {
	row := p.db.QueryRow(ctx, `
		DELETE FROM food_entries
		WHERE id = (
			SELECT id FROM food_entries
			WHERE entry_date = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		RETURNING `+entryColumns, dateOnly(day))

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nutrilog.LoggedFoodEntry{}, false, nil
	}
	if err != nil {
		return nutrilog.LoggedFoodEntry{}, false, err
	}
	return e, true, nil
}

func (p *Postgres) ExpendedCalories(ctx context.Context, day time.Time) (nutrilog.Expenditure, bool, error) {
	var active, resting *float64
	err := p.db.QueryRow(ctx, `
		SELECT active_kcal, resting_kcal
		FROM daily_metrics
		WHERE metric_date = $1
	`, dateOnly(day)).Scan(&active, &resting)
	if errors.Is(err, pgx.ErrNoRows) {
		return nutrilog.Expenditure{}, false, nil
	}
	if err != nil {
		return nutrilog.Expenditure{}, false, fmt.Errorf("query daily metrics: %w", err)
	}
	// a day with only one of the two readings has no usable total
	if active == nil || resting == nil {
		return nutrilog.Expenditure{}, false, nil
	}
	return nutrilog.Expenditure{ActiveKcal: *active, RestingKcal: *resting}, true, nil
}

func (p *Postgres) RecordExpenditure(ctx context.Context, day time.Time, exp nutrilog.Expenditure) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, active_kcal, resting_kcal, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (metric_date) DO UPDATE
		SET active_kcal = EXCLUDED.active_kcal,
			resting_kcal = EXCLUDED.resting_kcal,
			updated_at = NOW()
	`, dateOnly(day), exp.ActiveKcal, exp.RestingKcal)
	if err != nil {
		return fmt.Errorf("record expenditure: %w", err)
	}
	return nil
}

func (p *Postgres) SavePreset(ctx context.Context, preset nutrilog.MealPreset) (nutrilog.MealPreset, error) {
	if err := preset.Validate(); err != nil {
		return nutrilog.MealPreset{}, err
	}
	preset.Name = strings.TrimSpace(preset.Name)

	err := p.db.QueryRow(ctx, `
		INSERT INTO meal_presets (name, entries, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT ((lower(name))) DO UPDATE
		SET name = EXCLUDED.name,
			entries = EXCLUDED.entries,
			created_at = NOW()
		RETURNING id, created_at
	`, preset.Name, preset.Entries).Scan(&preset.ID, &preset.CreatedAt)
	if err != nil {
		return nutrilog.MealPreset{}, fmt.Errorf("save preset %q: %w", preset.Name, err)
	}
	return preset, nil
}

func (p *Postgres) GetPreset(ctx context.Context, name string) (nutrilog.MealPreset, bool, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, name, entries, created_at
		FROM meal_presets
		WHERE lower(name) = $1
	`, presetKey(name))

	preset, err := scanPreset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nutrilog.MealPreset{}, false, nil
	}
	if err != nil {
		return nutrilog.MealPreset{}, false, err
	}
	return preset, true, nil
}

func (p *Postgres) ListPresets(ctx context.Context) ([]nutrilog.MealPreset, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, entries, created_at
		FROM meal_presets
		ORDER BY lower(name)
	`)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	out := make([]nutrilog.MealPreset, 0)
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, preset)
	}
	return out, rows.Err()
}

func (p *Postgres) DeletePreset(ctx context.Context, name string) (bool, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM meal_presets WHERE lower(name) = $1`, presetKey(name))
	if err != nil {
		return false, fmt.Errorf("delete preset %q: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPreset(row pgx.Row) (nutrilog.MealPreset, error) {
	var preset nutrilog.MealPreset
	err := row.Scan(&preset.ID, &preset.Name, &preset.Entries, &preset.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return preset, err
		}
		return preset, fmt.Errorf("scan preset: %w", err)
	}
	return preset, nil
}

func scanEntry(row pgx.Row) (nutrilog.LoggedFoodEntry, error) {
	var (
		e       nutrilog.LoggedFoodEntry
		unit    string
		source  string
		barcode *string
	)
	err := row.Scan(
		&e.ID, &e.Date, &e.CreatedAt, &e.Name, &e.Quantity, &unit,
		&e.EnergyKcal, &e.ProteinG, &e.FatG, &e.CarbsG, &e.FiberG,
		&source, &barcode, &e.Approximate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan entry: %w", err)
	}
	e.Date = dateOnly(e.Date)
	e.Unit = nutrilog.Unit(unit)
	e.Source = nutrilog.Source(source)
	if barcode != nil {
		e.Barcode = *barcode
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
