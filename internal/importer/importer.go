// Package importer loads station and measurement CSV exports into a climate store.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"github.com/chrissnell/climate-api/internal/database"
)

var (
	stationColumns     = []string{"station", "name", "latitude", "longitude", "elevation"}
	measurementColumns = []string{"station", "date", "prcp", "tobs"}
)

// Loader writes parsed records into a store
type Loader interface {
	LoadStations(ctx context.Context, stations []database.Station) (int64, error)
	LoadMeasurements(ctx context.Context, measurements []database.Measurement) (int64, error)
}

// ReadStations parses a CSV with the header station,name,latitude,longitude,elevation.
// Column order does not matter; extra columns are ignored.
func ReadStations(r io.Reader) ([]database.Station, error) {
	var out []database.Station
	err := readCSV(r, stationColumns, func(line int, get func(string) string) error {
		lat, err := parseFloat(get("latitude"))
		if err != nil {
			return fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := parseFloat(get("longitude"))
		if err != nil {
			return fmt.Errorf("line %d: longitude: %w", line, err)
		}
		elev, err := parseFloat(get("elevation"))
		if err != nil {
			return fmt.Errorf("line %d: elevation: %w", line, err)
		}
		out = append(out, database.Station{
			Station:   get("station"),
			Name:      get("name"),
			Latitude:  lat,
			Longitude: lon,
			Elevation: elev,
		})
		return nil
	})
	return out, err
}

// ReadMeasurements parses a CSV with the header station,date,prcp,tobs.
// An empty prcp cell is stored as NULL.
func ReadMeasurements(r io.Reader) ([]database.Measurement, error) {
	var out []database.Measurement
	err := readCSV(r, measurementColumns, func(line int, get func(string) string) error {
		var prcp *float64
		if s := get("prcp"); s != "" {
			v, err := parseFloat(s)
			if err != nil {
				return fmt.Errorf("line %d: prcp: %w", line, err)
			}
			prcp = &v
		}
		tobs, err := parseFloat(get("tobs"))
		if err != nil {
			return fmt.Errorf("line %d: tobs: %w", line, err)
		}
		out = append(out, database.Measurement{
			Station: get("station"),
			Date:    get("date"),
			Prcp:    prcp,
			Tobs:    tobs,
		})
		return nil
	})
	return out, err
}

func readCSV(r io.Reader, required []string, row func(line int, get func(string) string) error) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty CSV: missing header")
		}
		return fmt.Errorf("error reading CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("CSV header is missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("error reading CSV line %d: %w", line, err)
		}

		get := func(col string) string {
			return strings.TrimSpace(record[index[col]])
		}
		if err := row(line, get); err != nil {
			return err
		}
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// GormLoader inserts records through gorm in batches
type GormLoader struct {
	db        *gorm.DB
	batchSize int
}

// NewGormLoader creates a loader that writes through db
func NewGormLoader(db *gorm.DB, batchSize int) *GormLoader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &GormLoader{db: db, batchSize: batchSize}
}

func (l *GormLoader) LoadStations(ctx context.Context, stations []database.Station) (int64, error) {
	if len(stations) == 0 {
		return 0, nil
	}
	res := l.db.WithContext(ctx).CreateInBatches(&stations, l.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("error inserting stations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (l *GormLoader) LoadMeasurements(ctx context.Context, measurements []database.Measurement) (int64, error) {
	if len(measurements) == 0 {
		return 0, nil
	}
	res := l.db.WithContext(ctx).CreateInBatches(&measurements, l.batchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("error inserting measurements: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CopyLoader bulk-loads records into Postgres with the COPY protocol
type CopyLoader struct {
	pool *pgxpool.Pool
}

// NewCopyLoader creates a loader that writes through pool
func NewCopyLoader(pool *pgxpool.Pool) *CopyLoader {
	return &CopyLoader{pool: pool}
}

func (l *CopyLoader) LoadStations(ctx context.Context, stations []database.Station) (int64, error) {
	return l.copy(ctx, database.Station{}.TableName(), stationColumns, len(stations), func(i int) ([]any, error) {
		s := stations[i]
		return []any{s.Station, s.Name, s.Latitude, s.Longitude, s.Elevation}, nil
	})
}

func (l *CopyLoader) LoadMeasurements(ctx context.Context, measurements []database.Measurement) (int64, error) {
	return l.copy(ctx, database.Measurement{}.TableName(), measurementColumns, len(measurements), func(i int) ([]any, error) {
		m := measurements[i]
		return []any{m.Station, m.Date, m.Prcp, m.Tobs}, nil
	})
}

func (l *CopyLoader) copy(ctx context.Context, table string, columns []string, n int, next func(int) ([]any, error)) (int64, error) {
	if n == 0 {
		return 0, nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(n, next))
	if err != nil {
		return 0, fmt.Errorf("error copying into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing %s: %w", table, err)
	}
	return copied, nil
}
