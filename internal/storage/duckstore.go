package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcboeker/go-duckdb"

	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/models"
)

// MaxWindowRows caps the rows returned by a single Window query.
const MaxWindowRows = 200000

// SampleStoreOptions tunes the DuckDB instance behind a SampleStore.
type SampleStoreOptions struct {
	Threads     int
	MemoryLimit string
}

// SampleStore keeps one finalized flight table in a temporary DuckDB file so
// playback clients can page through long flights by time window.
type SampleStore struct {
	db       *sql.DB
	dbPath   string
	logger   logging.Logger
	rows     int
	hasXYZ   bool
	minTime  float64
	maxTime  float64
	querySem chan struct{}
}

// NewSampleStore creates a store file for sessionID under tempDir.
func NewSampleStore(tempDir, sessionID string, opts SampleStoreOptions, logger logging.Logger) (*SampleStore, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	dbPath := filepath.Join(tempDir, fmt.Sprintf("replay_%s.duckdb", sessionID))
	logger = logging.OrNoop(logger).With(logging.String("component", "samplestore"), logging.String("path", dbPath))

	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "512MB"
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE samples (
			idx       INTEGER NOT NULL,
			time      DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			latitude  DOUBLE NOT NULL,
			altitude  DOUBLE NOT NULL,
			roll      DOUBLE NOT NULL,
			pitch     DOUBLE NOT NULL,
			yaw       DOUBLE NOT NULL,
			x         DOUBLE NOT NULL,
			y         DOUBLE NOT NULL,
			z         DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Debug(context.Background(), "sample store created")
	return &SampleStore{
		db:       db,
		dbPath:   dbPath,
		logger:   logger,
		querySem: make(chan struct{}, 3),
	}, nil
}

// Load appends every row of table and indexes time. A store holds a single
// table; Load may only be called once.
func (s *SampleStore) Load(ctx context.Context, table *models.FlightTable) error {
	if s.rows > 0 {
		return fmt.Errorf("sample store already loaded")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	hasXYZ := table.HasCartesian()
	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "samples")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i := 0; i < table.Len(); i++ {
			var x, y, z float64
			if hasXYZ {
				x, y, z = table.X[i], table.Y[i], table.Z[i]
			}
			err := appender.AppendRow(
				int32(i),
				table.Time[i],
				table.Longitude[i],
				table.Latitude[i],
				table.Altitude[i],
				table.Roll[i],
				table.Pitch[i],
				table.Yaw[i],
				x, y, z,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX idx_time ON samples(time)"); err != nil {
		return fmt.Errorf("idx_time creation failed: %w", err)
	}

	s.rows = table.Len()
	s.hasXYZ = hasXYZ
	if s.rows > 0 {
		s.minTime, s.maxTime = table.Time[0], table.Time[s.rows-1]
	}
	s.logger.Debug(ctx, "samples loaded", logging.Int("rows", s.rows))
	return nil
}

// Window returns rows with start <= time <= end, keeping every stride-th row
// of the window, at most limit rows, ordered by time.
func (s *SampleStore) Window(ctx context.Context, start, end float64, stride, limit int) (*models.FlightTable, error) {
	select {
	case s.querySem <- struct{}{}:
		defer func() { <-s.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if stride < 1 {
		stride = 1
	}
	if limit <= 0 || limit > MaxWindowRows {
		limit = MaxWindowRows
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT time, longitude, latitude, altitude, roll, pitch, yaw, x, y, z
		FROM (
			SELECT *, row_number() OVER (ORDER BY time) - 1 AS rn
			FROM samples WHERE time >= ? AND time <= ?
		)
		WHERE rn % ? = 0
		ORDER BY time
		LIMIT ?
	`, start, end, stride, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := models.NewFlightTable(0)
	for rows.Next() {
		var r models.FlightRecord
		if err := rows.Scan(&r.Time, &r.Longitude, &r.Latitude, &r.Altitude,
			&r.Roll, &r.Pitch, &r.Yaw, &r.X, &r.Y, &r.Z); err != nil {
			return nil, err
		}
		r.HasCartesian = s.hasXYZ
		out.Append(r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if s.hasXYZ && out.Len() == 0 {
		out.X, out.Y, out.Z = []float64{}, []float64{}, []float64{}
	}
	return out, nil
}

// TimeRange returns the first and last sample time. ok is false when empty.
func (s *SampleStore) TimeRange() (start, end float64, ok bool) {
	return s.minTime, s.maxTime, s.rows > 0
}

// Len returns the number of stored rows.
func (s *SampleStore) Len() int {
	return s.rows
}

// Close closes the database and removes the temp file
func (s *SampleStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.dbPath != "" {
		os.Remove(s.dbPath)
		os.Remove(s.dbPath + ".wal")
	}
	return err
}
