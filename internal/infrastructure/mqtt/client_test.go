package mqtt

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/nerrad567/moonrig/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests expect Mosquitto at 127.0.0.1:1883 and skip otherwise.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "moonrig-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS:         1,
		TopicPrefix: "moonrig",
	}
}

// skipIfNoBroker skips the test if no MQTT broker is running.
func skipIfNoBroker(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := Connect(testConfig(), "probe")
		if err != nil {
			t.Skip("MQTT broker not available, skipping integration test")
		}
		client.Close()
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name        string
		topics      Topics
		wantMotion  string
		wantThermal string
		wantStatus  string
	}{
		{
			name:        "simple prefix",
			topics:      Topics{Prefix: "moonrig", Instance: "voron-350"},
			wantMotion:  "moonrig/voron-350/motion",
			wantThermal: "moonrig/voron-350/thermal",
			wantStatus:  "moonrig/voron-350/status",
		},
		{
			name:        "nested prefix",
			topics:      Topics{Prefix: "lab/printers", Instance: "ender3"},
			wantMotion:  "lab/printers/ender3/motion",
			wantThermal: "lab/printers/ender3/thermal",
			wantStatus:  "lab/printers/ender3/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.topics.Motion(); got != tt.wantMotion {
				t.Errorf("Motion() = %q, want %q", got, tt.wantMotion)
			}
			if got := tt.topics.Thermal(); got != tt.wantThermal {
				t.Errorf("Thermal() = %q, want %q", got, tt.wantThermal)
			}
			if got := tt.topics.Status(); got != tt.wantStatus {
				t.Errorf("Status() = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"valid", "moonrig/voron-350/motion", false},
		{"single segment", "status", false},
		{"empty", "", true},
		{"plus wildcard", "moonrig/+/motion", true},
		{"hash wildcard", "moonrig/#", true},
		{"empty segment", "moonrig//motion", true},
		{"leading slash", "/moonrig/motion", true},
		{"trailing slash", "moonrig/motion/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("ValidateTopic(%q) = %v, want ErrInvalidTopic", tt.topic, err)
				}
			} else if err != nil {
				t.Errorf("ValidateTopic(%q) = %v, want nil", tt.topic, err)
			}
		})
	}
}

func TestTopicsValidate(t *testing.T) {
	if err := (Topics{Prefix: "moonrig", Instance: "voron-350"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	err := (Topics{Prefix: "moonrig", Instance: "a/b"}).Validate()
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Validate() with slash in instance = %v, want ErrInvalidTopic", err)
	}
	if err != nil && !strings.Contains(err.Error(), "single segment") {
		t.Errorf("Validate() error %q should mention single segment", err)
	}

	if err := (Topics{Prefix: "", Instance: "voron-350"}).Validate(); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Validate() with empty prefix = %v, want ErrInvalidTopic", err)
	}

	if err := (Topics{Prefix: "moonrig/#", Instance: "voron-350"}).Validate(); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Validate() with wildcard prefix = %v, want ErrInvalidTopic", err)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := client.Topics().Motion(); got != "moonrig/voron-350/motion" {
		t.Errorf("Topics().Motion() = %q, want %q", got, "moonrig/voron-350/motion")
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg, "voron-350")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectBadInstance(t *testing.T) {
	_, err := Connect(testConfig(), "voron/350")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Connect() error = %v, want ErrInvalidTopic", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999 // Nothing listening here

	_, err := Connect(cfg, "voron-350")
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{}
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "moonrig/+/motion", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "moonrig/voron/motion", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "moonrig/voron/motion", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "moonrig/voron/motion", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSONMarshalError(t *testing.T) {
	client := &Client{topics: Topics{Prefix: "moonrig", Instance: "voron-350"}}

	err := client.PublishJSON("moonrig/voron-350/motion", func() {})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublish(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := client.Topics().Motion()
	if err := client.Publish(topic, []byte(`{"command":"G28"}`), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

func TestPublishMotion(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	event := map[string]any{
		"command": "G1 X100.000 Y100.000 F1500",
		"outcome": "sent",
	}
	if err := client.PublishMotion(event); err != nil {
		t.Errorf("PublishMotion() error = %v", err)
	}
}

func TestPublishThermal(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	event := map[string]any{
		"command": "M140 S60.0",
		"outcome": "sent",
		"target":  60.0,
	}
	if err := client.PublishThermal(event); err != nil {
		t.Errorf("PublishThermal() error = %v", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	skipIfNoBroker(t)

	client, err := Connect(testConfig(), "voron-350")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	err = client.Publish(client.Topics().Motion(), []byte("x"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}
