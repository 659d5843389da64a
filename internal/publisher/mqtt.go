package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/jgoulah/amberbalance/internal/config"
	"github.com/jgoulah/amberbalance/pkg/models"
)

const attribution = "Data from amber.com.au"

// Publisher pushes reports to Home Assistant over HTTP and/or MQTT
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
	http        *http.Client
	name        string
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(name string, mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
	}

	var client mqtt.Client
	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("amberbalance-" + uuid.NewString()[:8])
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
	}

	return newPublisher(name, client, mqttCfg.GetTopicPrefix(), haCfg), nil
}

func newPublisher(name string, client mqtt.Client, topicPrefix string, haCfg config.HAConfig) *Publisher {
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		haConfig:    haCfg,
		http:        &http.Client{Timeout: 10 * time.Second},
		name:        name,
	}
}

// Enabled reports whether any sink is configured
func (p *Publisher) Enabled() bool {
	return p.haConfig.Enabled || p.client != nil
}

// OnReport publishes each refreshed report
func (p *Publisher) OnReport(ctx context.Context, report models.Report) error {
	return p.Publish(ctx, report)
}

// Publish sends the report to every configured sink
func (p *Publisher) Publish(ctx context.Context, report models.Report) error {
	var errs []error
	if p.haConfig.Enabled {
		if err := p.publishHA(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("home assistant: %w", err))
		}
	}
	if p.client != nil {
		if err := p.publishMQTT(report); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HAPayload matches the Home Assistant state API body
type HAPayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// EntityID returns the Home Assistant sensor for a site
func (p *Publisher) EntityID(siteID string) string {
	return fmt.Sprintf("sensor.%s_%s_position", p.haConfig.GetEntityPrefix(), slug(siteID))
}

func (p *Publisher) publishHA(ctx context.Context, report models.Report) error {
	apiURL := fmt.Sprintf("%s/api/states/%s", strings.TrimRight(p.haConfig.URL, "/"), p.EntityID(report.SiteID))

	attrs := attributes(report)
	attrs["friendly_name"] = fmt.Sprintf("%s (%s)", p.name, report.SiteID)
	attrs["unit_of_measurement"] = "AUD"
	attrs["icon"] = "mdi:currency-usd"

	body, err := json.Marshal(HAPayload{
		State:      formatState(report),
		Attributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (p *Publisher) publishMQTT(report models.Report) error {
	base := fmt.Sprintf("%s/%s", p.topicPrefix, slug(report.SiteID))

	attrs, err := json.Marshal(attributes(report))
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}

	for _, msg := range []struct {
		topic   string
		payload []byte
	}{
		{base + "/state", []byte(formatState(report))},
		{base + "/attributes", attrs},
	} {
		token := p.client.Publish(msg.topic, 1, true, msg.payload)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("publishing %s: timed out", msg.topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing %s: %w", msg.topic, err)
		}
	}
	return nil
}

func formatState(report models.Report) string {
	return fmt.Sprintf("%.2f", report.Position())
}

func attributes(report models.Report) map[string]any {
	t := report.Totals
	return map[string]any{
		"attribution":    attribution,
		"site_id":        report.SiteID,
		"range_start":    report.RangeStart,
		"range_end":      report.RangeEnd,
		"import_kwh":     t.ImportKWh,
		"export_kwh":     t.ExportKWh,
		"import_value":   t.ImportCost,
		"export_value":   t.ExportEarnings,
		"energy_total":   t.TotalCost,
		"surcharge":      t.Surcharge,
		"subscription":   t.Subscription,
		"position":       t.Position,
		"daily":          report.Daily,
		"last_refreshed": report.UpdatedAt.Format(time.RFC3339),
	}
}

// slug lowercases s and replaces anything outside [a-z0-9] with '_'
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
