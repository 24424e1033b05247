package database

import (
	"fmt"
)

// Measurement is one station's daily precipitation and temperature reading
type Measurement struct {
	ID      int      `gorm:"primaryKey;column:id"`
	Station string   `gorm:"column:station;type:text;index"`
	Date    string   `gorm:"column:date;type:text;index"`
	Prcp    *float64 `gorm:"column:prcp;type:double precision"`
	Tobs    float64  `gorm:"column:tobs;type:double precision"`
}

// TableName specifies the table name for Measurement
func (Measurement) TableName() string {
	return "measurement"
}

// Station is a fixed weather-reporting location
type Station struct {
	ID        int     `gorm:"primaryKey;column:id"`
	Station   string  `gorm:"column:station;type:text;uniqueIndex"`
	Name      string  `gorm:"column:name;type:text"`
	Latitude  float64 `gorm:"column:latitude;type:double precision"`
	Longitude float64 `gorm:"column:longitude;type:double precision"`
	Elevation float64 `gorm:"column:elevation;type:double precision"`
}

// TableName specifies the table name for Station
func (Station) TableName() string {
	return "station"
}

// expectedSchema lists the columns the queries depend on, per model
var expectedSchema = []struct {
	model   interface{ TableName() string }
	columns []string
}{
	{Measurement{}, []string{"station", "date", "prcp", "tobs"}},
	{Station{}, []string{"station", "name", "latitude", "longitude", "elevation"}},
}

// VerifySchema checks that the store exposes the tables and columns the API
// reads. The API never creates or alters them.
func (c *Client) VerifySchema() error {
	m := c.DB.Migrator()
	for _, s := range expectedSchema {
		if !m.HasTable(s.model.TableName()) {
			return fmt.Errorf("schema check failed: table %q not found", s.model.TableName())
		}
		for _, col := range s.columns {
			if !m.HasColumn(s.model.TableName(), col) {
				return fmt.Errorf("schema check failed: column %q not found in table %q", col, s.model.TableName())
			}
		}
	}
	return nil
}

// EnsureSchema creates the tables when they do not exist. Only the import
// tool calls this.
func (c *Client) EnsureSchema() error {
	if err := c.DB.AutoMigrate(&Station{}, &Measurement{}); err != nil {
		return fmt.Errorf("error creating climate tables: %w", err)
	}
	return nil
}
