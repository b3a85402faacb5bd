package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"allsky/internal/config"
)

// newMQTTClient is replaced in tests.
var newMQTTClient = mqtt.NewClient

type mqttBackend struct {
	cfg     config.UploadMQTT
	timeout time.Duration
	logger  *slog.Logger
	client  mqtt.Client
}

type mqttMessage struct {
	topic   string
	payload []byte
}

func newMQTT(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	if strings.TrimSpace(cfg.Upload.MQTT.Host) == "" {
		return nil, fmt.Errorf("upload.mqtt.host is required for the mqtt backend")
	}
	timeout := cfg.UploadTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &mqttBackend{cfg: cfg.Upload.MQTT, timeout: timeout, logger: logger}, nil
}

func (b *mqttBackend) Name() string { return config.UploadBackendMQTT }

func (b *mqttBackend) broker() string {
	scheme := "tcp"
	if b.cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.cfg.Host, b.cfg.Port)
}

func (b *mqttBackend) clientID() string {
	prefix := strings.TrimSpace(b.cfg.ClientID)
	if prefix == "" {
		prefix = "allsky"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

func (b *mqttBackend) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.broker())
	opts.SetClientID(b.clientID())
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	if b.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}
	opts.OnConnect = func(mqtt.Client) {
		b.logger.Info("mqtt connection established", slog.String("broker", b.broker()))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost, will auto-reconnect",
			slog.String("broker", b.broker()),
			slog.Any("error", err),
		)
	}

	b.client = newMQTTClient(opts)
	token := b.client.Connect()
	if err := b.wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.broker(), err)
	}
	return nil
}

func (b *mqttBackend) Send(ctx context.Context, item Item) error {
	if b.client == nil {
		return fmt.Errorf("mqtt not connected")
	}
	image, err := os.ReadFile(item.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", item.Path, err)
	}

	start := time.Now()
	for _, msg := range b.messages(image, item) {
		token := b.client.Publish(msg.topic, byte(b.cfg.QoS), b.cfg.Retain, msg.payload)
		if err := b.wait(ctx, token); err != nil {
			return fmt.Errorf("publish %s: %w", msg.topic, err)
		}
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(len(image)) / elapsed.Seconds() / 1024
	}
	b.logger.Info(fmt.Sprintf("File transferred in %0.4f s (%0.2f kB/s)", elapsed.Seconds(), rate),
		slog.String("path", item.Path),
	)
	return nil
}

func (b *mqttBackend) messages(image []byte, item Item) []mqttMessage {
	base := strings.TrimRight(b.cfg.BaseTopic, "/")
	topic := func(leaf string) string { return base + "/" + leaf }
	values := item.Telemetry
	return []mqttMessage{
		{topic: topic("latest"), payload: image},
		{topic: topic("exposure"), payload: []byte(strconv.FormatFloat(values.Exposure, 'f', 6, 64))},
		{topic: topic("gain"), payload: []byte(strconv.Itoa(values.Gain))},
		{topic: topic("temp"), payload: []byte(strconv.FormatFloat(values.SensorTemp, 'f', 1, 64))},
		{topic: topic("night"), payload: []byte(strconv.Itoa(values.Night))},
		{topic: topic("moonmode"), payload: []byte(strconv.Itoa(values.MoonMode))},
	}
}

func (b *mqttBackend) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", b.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *mqttBackend) Close() error {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return nil
}
