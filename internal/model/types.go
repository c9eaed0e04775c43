package model

import "time"

// Known alert categories. Inputs carrying other values are stored as-is
// (uppercased), so these are advisory rather than enforced.
const (
	TypeSOS         = "SOS"
	TypeTech        = "TECH"
	TypeFire        = "FIRE"
	TypeMedical     = "MEDICAL"
	TypeRadiation   = "RADIATION"
	TypeDebris      = "DEBRIS"
	TypeLowPower    = "LOW_POWER"
	TypeSystemAlert = "SYSTEM_ALERT"
	TypeTest        = "TEST"
	TypeOther       = "OTHER"
)

// Known provenance tags for the Source field.
const (
	SourceSatellite = "satellite"
	SourceStation   = "station"
	SourceMobile    = "mobile"
	SourceTestbench = "testbench"
	SourceUnknown   = "unknown"
)

// Alert is the canonical normalized event record. Latitude and longitude are
// always finite; Intensity is within [0,5]. A zero Timestamp means the store
// fills in the ingestion time.
type Alert struct {
	Type      string    `json:"type"`
	Message   string    `json:"msg"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	City      string    `json:"city"`
	Intensity int       `json:"intensity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"ts"`
}

// StoredAlert extends Alert with the fields assigned at persistence.
type StoredAlert struct {
	Alert
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// ValidationError marks input that could not be normalized into an Alert.
// It is client-caused and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid alert: " + e.Reason
}

// IngestionError captures a payload that failed normalization or persistence.
type IngestionError struct {
	Source  string `json:"source"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}
