package openmeteo

import (
	"fmt"
	"math"

	"skymind-collector/internal/weather"
)

// CurrentAPIResponse is the subset of the forecast response requested with
// the current= parameter. Pointers distinguish absent keys from zero values.
type CurrentAPIResponse struct {
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Current   *CurrentWeather `json:"current"`
}

type CurrentWeather struct {
	Time               *string  `json:"time"`
	Temperature2M      *float64 `json:"temperature_2m"`
	RelativeHumidity2M *float64 `json:"relative_humidity_2m"`
	WindSpeed10M       *float64 `json:"wind_speed_10m"`
	WeatherCode        *float64 `json:"weather_code"`
}

func (r CurrentAPIResponse) toReading() (weather.Reading, error) {
	if r.Latitude == nil {
		return weather.Reading{}, missing("latitude")
	}
	if r.Longitude == nil {
		return weather.Reading{}, missing("longitude")
	}
	cur := r.Current
	if cur == nil {
		return weather.Reading{}, missing("current")
	}
	switch {
	case cur.Temperature2M == nil:
		return weather.Reading{}, missing("current.temperature_2m")
	case cur.RelativeHumidity2M == nil:
		return weather.Reading{}, missing("current.relative_humidity_2m")
	case cur.WindSpeed10M == nil:
		return weather.Reading{}, missing("current.wind_speed_10m")
	case cur.WeatherCode == nil:
		return weather.Reading{}, missing("current.weather_code")
	case cur.Time == nil:
		return weather.Reading{}, missing("current.time")
	}
	// WMO codes are integers; 3.0 is accepted, 3.5 is not.
	code := *cur.WeatherCode
	if code != math.Trunc(code) || math.Abs(code) > math.MaxInt32 {
		return weather.Reading{}, fmt.Errorf("current.weather_code %v is not an integer", code)
	}

	return weather.Reading{
		Latitude:      *r.Latitude,
		Longitude:     *r.Longitude,
		Temperature:   *cur.Temperature2M,
		Humidity:      *cur.RelativeHumidity2M,
		WindSpeed:     *cur.WindSpeed10M,
		ConditionCode: int(code),
		Timestamp:     *cur.Time,
	}, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
