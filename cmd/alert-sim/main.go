// alert-sim publishes synthetic alerts to the MQTT topic so the pipeline can
// be exercised without real field hardware.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var alertTypes = []string{"SOS", "TECH", "MEDICAL", "LOW_POWER", "TEST"}

type alertPayload struct {
	Type      string  `json:"type"`
	Message   string  `json:"msg"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	City      string  `json:"city"`
	Intensity int     `json:"intensity"`
	Source    string  `json:"source"`
	Timestamp string  `json:"ts"`
}

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	topic := flag.String("topic", "skywatch/alerts", "Topic to publish alerts on")
	baseLat := flag.Float64("lat", 48.8566, "Base latitude in degrees")
	baseLng := flag.Float64("lng", 2.3522, "Base longitude in degrees")
	city := flag.String("city", "Paris", "City label attached to alerts")
	jitter := flag.Float64("jitter", 0.05, "Maximum random offset applied to coordinates, in degrees")
	interval := flag.Duration("interval", 2*time.Second, "Interval between published alerts")

	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	clientID := fmt.Sprintf("alert-sim-%d", time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	publish := func() {
		alertType := alertTypes[rng.Intn(len(alertTypes))]
		payload := alertPayload{
			Type:      alertType,
			Message:   fmt.Sprintf("Simulated %s alert", alertType),
			Latitude:  *baseLat + randomOffset(rng, *jitter),
			Longitude: *baseLng + randomOffset(rng, *jitter),
			City:      *city,
			Intensity: rng.Intn(6),
			Source:    "testbench",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("failed to encode payload: %v", err)
			return
		}

		token := client.Publish(*topic, 0, false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish error: %v", err)
			return
		}
		log.Printf("published %s type=%s intensity=%d", *topic, payload.Type, payload.Intensity)
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			publish()
		}
	}
}

func randomOffset(rng *rand.Rand, jitter float64) float64 {
	if jitter <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * jitter
}
