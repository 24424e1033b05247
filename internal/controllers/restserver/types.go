package restserver

// PrecipitationEntry is one element of the /precipitation response
type PrecipitationEntry struct {
	Date          string   `json:"date"`
	Precipitation *float64 `json:"precipitation"`
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status string `json:"status"`
}
