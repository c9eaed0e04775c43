// Package normalize converts untrusted, loosely-shaped alert payloads into
// the canonical model.Alert. Missing or malformed coordinates are the only
// hard failure; every other field degrades to a documented default.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"skywatch/alert-server/internal/model"
)

const (
	defaultType    = model.TypeSOS
	defaultMessage = "Signal received"
	defaultCity    = "Unknown"
	defaultSource  = model.SourceUnknown

	defaultIntensity = 1
	maxIntensity     = 5
)

// Normalize maps a raw key/value payload onto a canonical Alert. It returns a
// *model.ValidationError when lat/lng are missing or not finite. The returned
// Alert's Timestamp is zero when the input carried no usable timestamp; the
// store fills in the ingestion time.
func Normalize(raw map[string]any) (model.Alert, error) {
	lat, latOK := asFloat(raw["lat"])
	lng, lngOK := asFloat(raw["lng"])
	if !latOK || !lngOK {
		return model.Alert{}, &model.ValidationError{Reason: "invalid coordinates"}
	}

	a := model.Alert{
		Latitude:  lat,
		Longitude: lng,
		Type:      defaultType,
		Message:   defaultMessage,
		City:      defaultCity,
		Source:    defaultSource,
		Intensity: defaultIntensity,
	}

	if t := asString(raw["type"]); t != "" {
		a.Type = strings.ToUpper(t)
	}
	if msg, ok := raw["msg"].(string); ok {
		a.Message = msg
	}
	if city, ok := raw["city"].(string); ok {
		a.City = city
	}
	if source, ok := raw["source"].(string); ok {
		a.Source = source
	}
	if v, ok := asFloat(raw["intensity"]); ok {
		a.Intensity = ClampIntensity(v)
	}
	if ts, ok := asTime(raw["ts"]); ok {
		a.Timestamp = ts
	}

	return a, nil
}

// ClampIntensity rounds a raw intensity value to the nearest integer and
// clamps it into [0,5]. Out-of-range values are clamped, not rejected.
func ClampIntensity(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > maxIntensity {
		return maxIntensity
	}
	return n
}

// asFloat coerces JSON-ish scalar values to a finite float64.
func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64, float32, int, int64, json.Number, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}

// asTime parses RFC3339(Nano) strings and unix epoch numbers. Values at or
// above 1e12 are treated as milliseconds, matching what mobile clients send.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	default:
		epoch, ok := asFloat(v)
		if !ok {
			return time.Time{}, false
		}
		if epoch >= 1e12 {
			return time.UnixMilli(int64(epoch)).UTC(), true
		}
		return time.Unix(int64(epoch), 0).UTC(), true
	}
}
