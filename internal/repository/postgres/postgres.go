package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulwinex/nas-monitor/internal/config"
	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepository(ctx context.Context, dbConfig config.DBConfig, logger *zap.Logger) (*PostgresRepository, error) {
	// Конфигурация пула
	poolCfg, err := pgxpool.ParseConfig(dbConfig.DBSource)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolCfg.MaxConns = int32(dbConfig.MaxDBConnections)
	poolCfg.MinConns = int32(dbConfig.MinDBConnections)
	poolCfg.MaxConnLifetime = dbConfig.MaxConnLifetime
	poolCfg.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Горутина мониторинга соединений
	go monitorConnections(ctx, pool, logger)

	return &PostgresRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// monitorConnections периодически обновляет метрики соединений и завершается при отмене ctx
func monitorConnections(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping monitorConnections goroutine due to context cancellation")
			return
		case <-ticker.C:
			stats := pool.Stat()
			metrics.DBActiveConnections.Set(float64(stats.AcquiredConns()))
			metrics.DBIdleConnections.Set(float64(stats.IdleConns()))

			logger.Debug("Database connection stats",
				zap.Int("acquired", int(stats.AcquiredConns())),
				zap.Int("idle", int(stats.IdleConns())),
				zap.Int("max", int(stats.MaxConns())),
			)
		}
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id      BIGSERIAL PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	type    TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	details JSONB
);
CREATE INDEX IF NOT EXISTS idx_devices_type ON devices (type);

CREATE TABLE IF NOT EXISTS samples_raw (
	id        BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	device_id BIGINT NOT NULL REFERENCES devices (id),
	label     TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_raw_ts ON samples_raw (timestamp);
CREATE INDEX IF NOT EXISTS idx_samples_raw_device_label_ts ON samples_raw (device_id, label, timestamp);

CREATE TABLE IF NOT EXISTS samples_hourly (
	id        BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	device_id BIGINT NOT NULL REFERENCES devices (id),
	label     TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_hourly_ts ON samples_hourly (timestamp);

CREATE TABLE IF NOT EXISTS samples_history (
	id        BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	device_id BIGINT NOT NULL REFERENCES devices (id),
	label     TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_history_ts ON samples_history (timestamp);

CREATE TABLE IF NOT EXISTS watermarks (
	stage             TEXT PRIMARY KEY,
	last_processed_id BIGINT NOT NULL DEFAULT 0
);
`

// InitSchema создаёт таблицы; ошибка здесь фатальна для запуска
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	r.logger.Info("Database schema initialized")
	return nil
}

func sampleTable(tier domain.Tier) (string, error) {
	switch tier {
	case domain.TierRaw:
		return "samples_raw", nil
	case domain.TierHourly:
		return "samples_hourly", nil
	case domain.TierHistory:
		return "samples_history", nil
	}
	return "", fmt.Errorf("invalid tier: %q", tier)
}

func (r *PostgresRepository) UpsertDevice(ctx context.Context, name, devType string, details map[string]any) (*domain.Device, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("upsert_device").Observe(time.Since(start).Seconds())
	}()

	query := `
		INSERT INTO devices (name, type, details)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET type = EXCLUDED.type, details = EXCLUDED.details
		RETURNING id, name, type, enabled, details`

	var d domain.Device
	err := r.pool.QueryRow(ctx, query, name, devType, details).Scan(
		&d.ID, &d.Name, &d.Type, &d.Enabled, &d.Details,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device %q: %w", name, err)
	}
	return &d, nil
}

func (r *PostgresRepository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("list_devices").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.pool.Query(ctx, `SELECT id, name, type, enabled, details FROM devices ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

func (r *PostgresRepository) EnabledDevicesByType(ctx context.Context, devType string) ([]domain.Device, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("enabled_devices_by_type").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, type, enabled, details FROM devices WHERE enabled AND type = $1 ORDER BY name`, devType)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices by type: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

func scanDevices(rows pgx.Rows) ([]domain.Device, error) {
	var result []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.Enabled, &d.Details); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}
	return result, nil
}

// SetDeviceEnabled переключает флаг enabled; возвращает (nil, nil), если устройства нет
func (r *PostgresRepository) SetDeviceEnabled(ctx context.Context, name string, enabled bool) (*domain.Device, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("set_device_enabled").Observe(time.Since(start).Seconds())
	}()

	var d domain.Device
	err := r.pool.QueryRow(ctx,
		`UPDATE devices SET enabled = $2 WHERE name = $1 RETURNING id, name, type, enabled, details`,
		name, enabled,
	).Scan(&d.ID, &d.Name, &d.Type, &d.Enabled, &d.Details)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update device %q: %w", name, err)
	}
	return &d, nil
}

// AppendSamples записывает батч показаний в raw-уровень одной транзакцией.
// Показания с неизвестным именем устройства отбрасываются и считаются, батч при этом не падает.
func (r *PostgresRepository) AppendSamples(ctx context.Context, ts time.Time, readings []domain.Reading) (inserted, dropped int, err error) {
	if len(readings) == 0 {
		return 0, 0, nil
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("append_samples").Observe(time.Since(start).Seconds())
	}()

	names := make([]string, 0, len(readings))
	seen := make(map[string]struct{}, len(readings))
	for _, item := range readings {
		if _, ok := seen[item.DeviceName]; !ok {
			seen[item.DeviceName] = struct{}{}
			names = append(names, item.DeviceName)
		}
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name FROM devices WHERE name = ANY($1)`, names)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve devices: %w", err)
	}
	deviceIDs := make(map[string]int64, len(names))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan device id: %w", err)
		}
		deviceIDs[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("error iterating device ids: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range readings {
		deviceID, ok := deviceIDs[item.DeviceName]
		if !ok {
			dropped++
			metrics.SamplesDroppedUnknownDevice.Inc()
			r.logger.Warn("Dropping sample for unknown device, run inventory",
				zap.String("device", item.DeviceName),
				zap.String("label", item.Label))
			continue
		}
		batch.Queue(
			`INSERT INTO samples_raw (timestamp, device_id, label, value) VALUES ($1, $2, $3, $4)`,
			ts, deviceID, item.Label, item.Value)
		inserted++
	}
	if inserted == 0 {
		return 0, dropped, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, dropped, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, dropped, fmt.Errorf("failed to insert samples batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, dropped, fmt.Errorf("failed to commit samples batch: %w", err)
	}

	return inserted, dropped, nil
}

// Range возвращает метрики уровня по фильтру, упорядоченные по timestamp
func (r *PostgresRepository) Range(ctx context.Context, tier domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error) {
	table, err := sampleTable(tier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("range_" + string(tier)).Observe(time.Since(start).Seconds())
	}()

	query := `SELECT s.id, s.timestamp, s.device_id, d.name, d.type, s.label, s.value
		FROM ` + table + ` s JOIN devices d ON d.id = s.device_id`
	var conds []string
	var args []any

	addCond := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(filter.DeviceTypes) > 0 {
		addCond("d.type = ANY($%d)", filter.DeviceTypes)
	}
	if len(filter.DeviceNames) > 0 {
		addCond("d.name = ANY($%d)", filter.DeviceNames)
	}
	if len(filter.Labels) > 0 {
		addCond("s.label = ANY($%d)", filter.Labels)
	}
	if !filter.From.IsZero() {
		addCond("s.timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		addCond("s.timestamp <= $%d", filter.To)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY s.timestamp ASC, s.id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s range: %w", tier, err)
	}
	defer rows.Close()

	var result []domain.Sample
	for rows.Next() {
		var s domain.Sample
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.DeviceID, &s.DeviceName, &s.DeviceType, &s.Label, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}
	return result, nil
}

// Latest возвращает последнее значение каждой метрики по устройствам.
// При равных timestamp побеждает строка с большим id.
func (r *PostgresRepository) Latest(ctx context.Context, deviceTypes []string) (map[string]map[string]float64, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("latest").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT DISTINCT ON (s.device_id, s.label) d.name, s.label, s.value
		FROM samples_raw s JOIN devices d ON d.id = s.device_id`
	var args []any
	if len(deviceTypes) > 0 {
		args = append(args, deviceTypes)
		query += " WHERE d.type = ANY($1)"
	}
	query += " ORDER BY s.device_id, s.label, s.timestamp DESC, s.id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest values: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[string]float64)
	for rows.Next() {
		var name, label string
		var value float64
		if err := rows.Scan(&name, &label, &value); err != nil {
			return nil, fmt.Errorf("failed to scan latest row: %w", err)
		}
		if result[name] == nil {
			result[name] = make(map[string]float64)
		}
		result[name][label] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest rows: %w", err)
	}
	return result, nil
}

// MaxTimestamp возвращает максимальный timestamp уровня; ok=false для пустого уровня
func (r *PostgresRepository) MaxTimestamp(ctx context.Context, tier domain.Tier) (time.Time, bool, error) {
	table, err := sampleTable(tier)
	if err != nil {
		return time.Time{}, false, err
	}

	var ts *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(timestamp) FROM `+table).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max timestamp for %s: %w", tier, err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

// Watermark возвращает last_processed_id стадии, создавая строку при первом обращении
func (r *PostgresRepository) Watermark(ctx context.Context, stage string) (int64, error) {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO watermarks (stage) VALUES ($1) ON CONFLICT (stage) DO NOTHING`, stage); err != nil {
		return 0, fmt.Errorf("failed to ensure watermark for %s: %w", stage, err)
	}

	var lastID int64
	if err := r.pool.QueryRow(ctx,
		`SELECT last_processed_id FROM watermarks WHERE stage = $1`, stage).Scan(&lastID); err != nil {
		return 0, fmt.Errorf("failed to query watermark for %s: %w", stage, err)
	}
	return lastID, nil
}

// SamplesAfter отдаёт строки уровня с id выше водяного знака и timestamp раньше cutoff
func (r *PostgresRepository) SamplesAfter(ctx context.Context, tier domain.Tier, afterID int64, before time.Time) ([]domain.Sample, error) {
	table, err := sampleTable(tier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("samples_after_" + string(tier)).Observe(time.Since(start).Seconds())
	}()

	rows, err := r.pool.Query(ctx,
		`SELECT id, timestamp, device_id, label, value FROM `+table+`
		 WHERE id > $1 AND timestamp < $2 ORDER BY id ASC`, afterID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s samples after id %d: %w", tier, afterID, err)
	}
	defer rows.Close()

	var result []domain.Sample
	for rows.Next() {
		var s domain.Sample
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.DeviceID, &s.Label, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}
	return result, nil
}

// CommitAggregation записывает агрегаты в целевой уровень и продвигает водяной знак
// одной транзакцией: либо происходит и то и другое, либо ничего.
func (r *PostgresRepository) CommitAggregation(ctx context.Context, stage string, target domain.Tier, samples []domain.Sample, maxSourceID int64) error {
	table, err := sampleTable(target)
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("commit_aggregation").Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(
			`INSERT INTO `+table+` (timestamp, device_id, label, value) VALUES ($1, $2, $3, $4)`,
			s.Timestamp, s.DeviceID, s.Label, s.Value)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert aggregated samples: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE watermarks SET last_processed_id = $2 WHERE stage = $1 AND last_processed_id < $2`,
		stage, maxSourceID); err != nil {
		return fmt.Errorf("failed to advance watermark for %s: %w", stage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit aggregation for %s: %w", stage, err)
	}
	return nil
}

// DeleteBefore удаляет строки уровня старше cutoff, возвращает количество удалённых
func (r *PostgresRepository) DeleteBefore(ctx context.Context, tier domain.Tier, cutoff time.Time) (int64, error) {
	table, err := sampleTable(tier)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("delete_before_" + string(tier)).Observe(time.Since(start).Seconds())
	}()

	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old %s samples: %w", tier, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("health_check").Observe(time.Since(start).Seconds())
	}()

	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
