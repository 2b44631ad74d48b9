package types

// Option is a suggested value for a free-text form field.
type Option struct {
	Value string
	Hint  string
}

// TimeFrames are the suggested analysis horizons.
var TimeFrames = []Option{
	{"short_term", "Perfect for tactical decisions and immediate actions"},
	{"medium_term", "Ideal for strategic planning and major initiatives"},
	{"long_term", "Great for vision setting and transformation projects"},
}

// Regions are the suggested geographic scopes.
var Regions = []Option{
	{"global", "Comprehensive worldwide analysis"},
	{"north_america", "Focus on US and Canadian markets"},
	{"europe", "European market and regulatory environment"},
	{"asia", "Asian market dynamics and opportunities"},
	{"africa", "African market potential and challenges"},
	{"latin_america", "Latin American market conditions"},
}

// Hint returns the hint for value, or "" when it is not a suggested option.
func Hint(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Hint
		}
	}
	return ""
}

// NextOption returns the option after value, wrapping around. Unknown
// values start at the first option.
func NextOption(options []Option, value string, step int) string {
	if len(options) == 0 {
		return value
	}
	idx := -1
	for i, o := range options {
		if o.Value == value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return options[0].Value
	}
	n := len(options)
	return options[((idx+step)%n+n)%n].Value
}
