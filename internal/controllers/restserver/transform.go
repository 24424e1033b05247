package restserver

import (
	"github.com/chrissnell/climate-api/internal/database"
)

// transformPrecipitation converts per-date rows into the JSON object list
func transformPrecipitation(rows []database.DailyPrecipitation) []PrecipitationEntry {
	out := make([]PrecipitationEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, PrecipitationEntry{
			Date:          r.Date,
			Precipitation: r.Precipitation,
		})
	}
	return out
}

// transformObservations converts rows into [date, tobs] pairs
func transformObservations(rows []database.TemperatureObservation) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.Date, r.Tobs})
	}
	return out
}

// transformSummaries converts start-date summaries into [date, min, max, avg] tuples
func transformSummaries(rows []database.TemperatureSummary) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.Date, r.Min, r.Max, r.Avg})
	}
	return out
}

// transformSummary converts a range summary into a single [min, max, avg] tuple.
// Nil values encode as null.
func transformSummary(s database.TemperatureSummary) []any {
	return []any{s.Min, s.Max, s.Avg}
}
