// Command mqtt_bridge subscribes to collar readings published over MQTT and
// forwards them to the HTTP ingest endpoint. Collars on cellular links POST
// directly; collars on LoRa gateways publish via the broker and rely on this
// bridge.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

type config struct {
	BrokerURL    string
	Topic        string
	ClientID     string
	IngestURL    string
	DeviceAPIKey string
}

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	httpClient := &http.Client{Timeout: 10 * time.Second}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := forward(httpClient, cfg, msg.Topic(), msg.Payload()); err != nil {
			logger.Printf("forward error: topic=%s err=%v", msg.Topic(), err)
			return
		}
		logger.Printf("forwarded reading: topic=%s bytes=%d", msg.Topic(), len(msg.Payload()))
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(client mqtt.Client) {
			if token := client.Subscribe(cfg.Topic, 1, handler); token.Wait() && token.Error() != nil {
				logger.Printf("subscribe error: %v", token.Error())
			}
		})
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatalf("mqtt connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	logger.Printf("bridging %s on %s to %s", cfg.Topic, cfg.BrokerURL, cfg.IngestURL)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down")
}

// forward injects the shared device key and posts the reading. Payloads that
// carry a sensor_id only in the topic suffix get it filled in.
func forward(client *http.Client, cfg config, topic string, payload []byte) error {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if _, ok := body["sensor_id"]; !ok {
		if sensorID := topicSensorID(topic); sensorID != "" {
			body["sensor_id"] = sensorID
		}
	}
	body["api_key"] = cfg.DeviceAPIKey

	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(cfg.IngestURL, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingest returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// topicSensorID extracts the sensor id from topics like
// pasture/readings/<sensor-id>.
func topicSensorID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

func loadConfig() config {
	cfg := config{
		BrokerURL:    getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		Topic:        getenvDefault("MQTT_TOPIC", "pasture/readings/#"),
		ClientID:     getenvDefault("MQTT_CLIENT_ID", "pasture-mqtt-bridge"),
		IngestURL:    getenvDefault("INGEST_URL", "http://localhost:8080/ingest/sensors/reading"),
		DeviceAPIKey: getenvDefault("DEVICE_API_KEY", ""),
	}
	if cfg.DeviceAPIKey == "" {
		log.Fatal("DEVICE_API_KEY is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
