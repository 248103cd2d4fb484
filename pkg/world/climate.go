// Copyright 2024-2026 Aiku AI

package world

// Climate is a climate sample at one block position. Temperature is in
// degrees Celsius; rainfall, worldgen rainfall and fertility are 0..1.
type Climate struct {
	Temperature      float64 `json:"temperature"`
	Rainfall         float64 `json:"rainfall"`
	WorldgenRainfall float64 `json:"worldgen_rainfall"`
	Fertility        float64 `json:"fertility"`
}

const unknownWeatherEmoji = "❓"

// WeatherEmoji picks a glyph for the current conditions. A nil sample
// renders as a question mark.
func (c *Climate) WeatherEmoji() string {
	if c == nil {
		return unknownWeatherEmoji
	}
	if c.Temperature < 0 {
		if c.Rainfall > 0.3 {
			return "\U0001f328️"
		}
		return "❄️"
	}
	switch {
	case c.Rainfall > 0.6:
		return "\U0001f327️"
	case c.Rainfall > 0.3:
		return "\U0001f326️"
	case c.Rainfall > 0.1:
		return "⛅"
	default:
		return "☀️"
	}
}

// Description returns a short human summary of the conditions.
func (c *Climate) Description() string {
	if c == nil {
		return "Unknown conditions"
	}
	t, rain := c.Temperature, c.Rainfall
	switch {
	case t < -10:
		return "Freezing cold!"
	case t < 0:
		if rain > 0.3 {
			return "Snowy conditions"
		}
		return "Cold and clear"
	case t < 10:
		if rain > 0.5 {
			return "Cold and rainy"
		}
		return "Cool weather"
	case t < 20:
		if rain > 0.5 {
			return "Mild with rain"
		}
		return "Pleasant weather"
	case t < 30:
		if rain > 0.5 {
			return "Warm and rainy"
		}
		return "Warm and sunny"
	}
	if rain > 0.3 {
		return "Hot and humid"
	}
	return "Hot and dry"
}
