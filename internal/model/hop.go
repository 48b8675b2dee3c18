package model

// Hop is one intermediate point reported by a path trace. The hop number is
// kept exactly as the trace tool reported it; anomalous output may skip or
// repeat numbers and the parser does not renumber.
type Hop struct {
	Hop     int       `json:"hop"`
	IP      string    `json:"ip,omitempty"`
	RDNS    string    `json:"rdns,omitempty"`
	Times   []float64 `json:"times"`
	RawLine string    `json:"output"`

	// Geo attributes, attached by the correlator when historical event
	// geodata exists for the hop IP.
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Country string   `json:"country,omitempty"`
	State   string   `json:"state,omitempty"`
	City    string   `json:"city,omitempty"`
}
