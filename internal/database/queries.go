package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chrissnell/climate-api/pkg/config"
)

// DailyPrecipitation is the precipitation recorded for one date. Precipitation
// is the mean of the non-null readings from every station that reported on
// that date and is nil when no station reported a value.
type DailyPrecipitation struct {
	Date          string   `gorm:"column:date"`
	Precipitation *float64 `gorm:"column:precipitation"`
}

// TemperatureObservation is a single (date, tobs) pair
type TemperatureObservation struct {
	Date string  `gorm:"column:date"`
	Tobs float64 `gorm:"column:tobs"`
}

// TemperatureSummary holds min/max/avg temperature over a set of measurements.
// All fields are nil when no measurement matched.
type TemperatureSummary struct {
	Date *string  `gorm:"column:first_date"`
	Min  *float64 `gorm:"column:tmin"`
	Max  *float64 `gorm:"column:tmax"`
	Avg  *float64 `gorm:"column:tavg"`
}

type summaryRow struct {
	TemperatureSummary
	Matched int64 `gorm:"column:matched"`
}

// PrecipitationByDate returns one entry per distinct measurement date, oldest first
func (c *Client) PrecipitationByDate(ctx context.Context) ([]DailyPrecipitation, error) {
	var rows []DailyPrecipitation

	err := c.DB.WithContext(ctx).
		Model(&Measurement{}).
		Select("date, AVG(prcp) AS precipitation").
		Group("date").
		Order("date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying precipitation by date: %w", err)
	}
	return rows, nil
}

// StationNames returns the name of every station, ordered by station identifier
func (c *Client) StationNames(ctx context.Context) ([]string, error) {
	var names []string

	err := c.DB.WithContext(ctx).
		Model(&Station{}).
		Order("station").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("error querying station names: %w", err)
	}
	return names, nil
}

// LatestDate returns the newest measurement date, or "" when the table is empty
func (c *Client) LatestDate(ctx context.Context) (string, error) {
	var latest sql.NullString

	err := c.DB.WithContext(ctx).
		Model(&Measurement{}).
		Select("MAX(date)").
		Row().
		Scan(&latest)
	if err != nil {
		return "", fmt.Errorf("error querying latest measurement date: %w", err)
	}
	return latest.String, nil
}

// TemperatureObservations returns every (date, tobs) in the window
// (reference - windowDays, reference], newest first.
func (c *Client) TemperatureObservations(ctx context.Context, reference time.Time, windowDays int) ([]TemperatureObservation, error) {
	var rows []TemperatureObservation

	to := reference.Format(config.DateLayout)
	from := reference.AddDate(0, 0, -windowDays).Format(config.DateLayout)

	err := c.DB.WithContext(ctx).
		Model(&Measurement{}).
		Select("date, tobs").
		Where("date > ? AND date <= ?", from, to).
		Order("date DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying temperature observations: %w", err)
	}
	return rows, nil
}

// TemperatureSummaryFrom aggregates every measurement dated on or after start.
// Date holds the earliest matching date. The slice is empty when nothing
// matches.
func (c *Client) TemperatureSummaryFrom(ctx context.Context, start string) ([]TemperatureSummary, error) {
	var row summaryRow

	err := c.DB.WithContext(ctx).
		Model(&Measurement{}).
		Select("MIN(date) AS first_date, MIN(tobs) AS tmin, MAX(tobs) AS tmax, AVG(tobs) AS tavg, COUNT(*) AS matched").
		Where("date >= ?", start).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("error querying temperature summary from %s: %w", start, err)
	}

	if row.Matched == 0 {
		return []TemperatureSummary{}, nil
	}
	return []TemperatureSummary{row.TemperatureSummary}, nil
}

// TemperatureSummaryBetween aggregates every measurement dated within
// [start, end]. Date is left nil.
func (c *Client) TemperatureSummaryBetween(ctx context.Context, start, end string) (TemperatureSummary, error) {
	var summary TemperatureSummary

	err := c.DB.WithContext(ctx).
		Model(&Measurement{}).
		Select("MIN(tobs) AS tmin, MAX(tobs) AS tmax, AVG(tobs) AS tavg").
		Where("date >= ? AND date <= ?", start, end).
		Scan(&summary).Error
	if err != nil {
		return TemperatureSummary{}, fmt.Errorf("error querying temperature summary from %s to %s: %w", start, end, err)
	}
	return summary, nil
}
