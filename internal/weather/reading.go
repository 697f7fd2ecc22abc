package weather

// Reading is the normalized current-conditions record published for
// downstream consumers. Values are copied from the upstream API unchanged.
type Reading struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Temperature   float64 `json:"temperature"`    // degrees Celsius
	Humidity      float64 `json:"humidity"`       // percent
	WindSpeed     float64 `json:"wind_speed"`     // km/h
	ConditionCode int     `json:"condition_code"` // WMO weather code
	Timestamp     string  `json:"timestamp"`      // as returned upstream, not parsed
}
