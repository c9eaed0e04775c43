// Package firefeed polls the NASA FIRMS active-fire feed and derives
// canonical FIRE alerts from satellite detections.
package firefeed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/normalize"
)

// SourceTag is the provenance recorded on derived fire alerts.
const SourceTag = "NASA_FIRMS"

// maxRows caps how many data lines are consumed per cycle, so recovery from
// an outage cannot flood the pipeline.
const maxRows = 10

// Feed column order: latitude, longitude, brightness, scan, track,
// acquisition date, then trailing columns we ignore.
const minColumns = 6

// Client fetches recent fire detections over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient builds a feed client for the given CSV endpoint.
func NewClient(url string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        url,
	}
}

// FetchRecent downloads the feed and maps at most maxRows detections onto
// canonical alerts. The header line is skipped; malformed rows are dropped.
func (c *Client) FetchRecent(ctx context.Context) ([]model.Alert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build firms request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch firms feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firms feed returned status %d", resp.StatusCode)
	}

	return parseFeed(resp.Body)
}

func parseFeed(r io.Reader) ([]model.Alert, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Header line.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read firms header: %w", err)
	}

	alerts := make([]model.Alert, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		alert, ok := detectionToAlert(record)
		if !ok {
			continue
		}
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

// detectionToAlert maps one feed row onto a canonical alert. Brightness is an
// infrared temperature in Kelvin; intensity scales it so ~300K maps to 0 and
// every 50K adds a level, clamped to [0,5].
func detectionToAlert(record []string) (model.Alert, bool) {
	if len(record) < minColumns {
		return model.Alert{}, false
	}

	lat, errLat := strconv.ParseFloat(record[0], 64)
	lng, errLng := strconv.ParseFloat(record[1], 64)
	brightness, errBright := strconv.ParseFloat(record[2], 64)
	if errLat != nil || errLng != nil || errBright != nil {
		return model.Alert{}, false
	}

	acqDate := record[5]

	return model.Alert{
		Type:      model.TypeFire,
		Message:   fmt.Sprintf("NASA FIRMS fire detected (%s)", acqDate),
		Latitude:  lat,
		Longitude: lng,
		City:      "Unknown",
		Intensity: normalize.ClampIntensity((brightness - 300) / 50),
		Source:    SourceTag,
	}, true
}
