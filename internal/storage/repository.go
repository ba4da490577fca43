package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"renal-risk-stream/internal/risk"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertFusionLogSQL = `INSERT INTO fusion_logs (
        id,
        stream_id,
        final_risk,
        score,
        strategy,
        summary,
        urgent_actions,
        long_term_advice,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	insertSensorReadingSQL = `INSERT INTO sensor_readings (
        fusion_log_id,
        stream_id,
        sensor_type,
        signal,
        value,
        unit,
        phase_angle,
        risk_level,
        explanation,
        trend,
        recorded_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listRecentFusionLogsSQL = `SELECT
        id,
        stream_id,
        final_risk,
        score,
        strategy,
        summary,
        urgent_actions,
        long_term_advice,
        created_at
    FROM fusion_logs
    ORDER BY created_at DESC
    LIMIT $1;`

	listStreamFusionLogsSQL = `SELECT
        id,
        stream_id,
        final_risk,
        score,
        strategy,
        summary,
        urgent_actions,
        long_term_advice,
        created_at
    FROM fusion_logs
    WHERE stream_id = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	listReadingsSQL = `SELECT
        id,
        fusion_log_id,
        stream_id,
        sensor_type,
        signal,
        value,
        unit,
        phase_angle,
        risk_level,
        explanation,
        trend,
        recorded_at
    FROM sensor_readings
    WHERE fusion_log_id = $1
    ORDER BY id;`

	countFusionLogsSQL = `SELECT COUNT(*) FROM fusion_logs;`

	deleteFusionLogsBeforeSQL = `DELETE FROM fusion_logs WHERE created_at < $1;`
)

// FusionLogStore defines operations for fusion log persistence.
type FusionLogStore interface {
	InsertFusionLog(ctx context.Context, log FusionLog) error
	ListRecentFusionLogs(ctx context.Context, limit int) ([]FusionLog, error)
	ListStreamFusionLogs(ctx context.Context, streamID uuid.UUID, limit int) ([]FusionLog, error)
	ListReadings(ctx context.Context, fusionLogID uuid.UUID) ([]SensorReading, error)
	CountFusionLogs(ctx context.Context) (int64, error)
	DeleteFusionLogsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to fusion logs and sensor readings.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertFusionLog persists a fusion log and its readings in one transaction.
func (s *Store) InsertFusionLog(ctx context.Context, log FusionLog) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, insertFusionLogSQL, fusionLogArgs(log)...); err != nil {
		return fmt.Errorf("insert fusion log: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range log.Readings {
		batch.Queue(insertSensorReadingSQL, sensorReadingArgs(r)...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert sensor readings: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fusion log: %w", err)
	}
	return nil
}

// ListRecentFusionLogs lists the most recent fusion logs with their readings.
func (s *Store) ListRecentFusionLogs(ctx context.Context, limit int) ([]FusionLog, error) {
	return s.listFusionLogs(ctx, listRecentFusionLogsSQL, limit)
}

// ListStreamFusionLogs lists the most recent fusion logs of one stream.
func (s *Store) ListStreamFusionLogs(ctx context.Context, streamID uuid.UUID, limit int) ([]FusionLog, error) {
	return s.listFusionLogs(ctx, listStreamFusionLogsSQL, streamID, limit)
}

func (s *Store) listFusionLogs(ctx context.Context, query string, args ...any) ([]FusionLog, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list fusion logs: %w", queryErr)
	}
	logs := make([]FusionLog, 0)
	for rows.Next() {
		log, scanErr := scanFusionLog(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		logs = append(logs, log)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range logs {
		readings, err := s.ListReadings(ctx, logs[i].ID)
		if err != nil {
			return nil, err
		}
		logs[i].Readings = readings
	}
	return logs, nil
}

// ListReadings lists the readings linked to a fusion log.
func (s *Store) ListReadings(ctx context.Context, fusionLogID uuid.UUID) ([]SensorReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsSQL, fusionLogID)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]SensorReading, 0, len(risk.Signals()))
	for rows.Next() {
		reading, scanErr := scanSensorReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, reading)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// CountFusionLogs counts stored fusion logs.
func (s *Store) CountFusionLogs(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countFusionLogsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count fusion logs: %w", scanErr)
	}
	return count, nil
}

// DeleteFusionLogsBefore deletes historical fusion logs and, by cascade, their readings.
func (s *Store) DeleteFusionLogsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteFusionLogsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete fusion logs before: %w", execErr)
	}
	return nil
}

func fusionLogArgs(log FusionLog) []any {
	var score any
	if log.Score != nil {
		score = log.Score.String()
	}
	return []any{
		log.ID,
		log.StreamID,
		log.FinalRisk.String(),
		score,
		log.Strategy,
		log.Summary,
		log.UrgentActions,
		log.LongTermAdvice,
		log.CreatedAt,
	}
}

func sensorReadingArgs(r SensorReading) []any {
	var phaseAngle any
	if r.PhaseAngle != nil {
		phaseAngle = r.PhaseAngle.String()
	}
	return []any{
		r.FusionLogID,
		r.StreamID,
		r.SensorType,
		string(r.Signal),
		r.Value.String(),
		r.Unit,
		phaseAngle,
		r.RiskLevel.String(),
		r.Explanation,
		r.Trend,
		r.RecordedAt,
	}
}

func scanFusionLog(rows pgx.Rows) (FusionLog, error) {
	var (
		log      FusionLog
		riskStr  string
		scoreStr sql.NullString
	)
	if err := rows.Scan(
		&log.ID,
		&log.StreamID,
		&riskStr,
		&scoreStr,
		&log.Strategy,
		&log.Summary,
		&log.UrgentActions,
		&log.LongTermAdvice,
		&log.CreatedAt,
	); err != nil {
		return FusionLog{}, err
	}

	level, err := risk.ParseLevel(riskStr)
	if err != nil {
		return FusionLog{}, fmt.Errorf("parse final risk: %w", err)
	}
	log.FinalRisk = level

	if scoreStr.Valid {
		score, err := decimal.NewFromString(scoreStr.String)
		if err != nil {
			return FusionLog{}, fmt.Errorf("parse score: %w", err)
		}
		log.Score = &score
	}
	return log, nil
}

func scanSensorReading(rows pgx.Rows) (SensorReading, error) {
	var (
		r             SensorReading
		signalStr     string
		valueStr      string
		phaseAngleStr sql.NullString
		riskStr       string
	)
	if err := rows.Scan(
		&r.ID,
		&r.FusionLogID,
		&r.StreamID,
		&r.SensorType,
		&signalStr,
		&valueStr,
		&r.Unit,
		&phaseAngleStr,
		&riskStr,
		&r.Explanation,
		&r.Trend,
		&r.RecordedAt,
	); err != nil {
		return SensorReading{}, err
	}

	signal, err := risk.ParseSignal(signalStr)
	if err != nil {
		return SensorReading{}, fmt.Errorf("parse signal: %w", err)
	}
	r.Signal = signal

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return SensorReading{}, fmt.Errorf("parse value: %w", err)
	}
	r.Value = value

	if phaseAngleStr.Valid {
		pa, err := decimal.NewFromString(phaseAngleStr.String)
		if err != nil {
			return SensorReading{}, fmt.Errorf("parse phase angle: %w", err)
		}
		r.PhaseAngle = &pa
	}

	level, err := risk.ParseLevel(riskStr)
	if err != nil {
		return SensorReading{}, fmt.Errorf("parse risk level: %w", err)
	}
	r.RiskLevel = level
	return r, nil
}
