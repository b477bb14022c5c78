package mqtt

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"groundstation-safety/internal/observability/metrics"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

// Sink receives decoded samples.
type Sink interface {
	Update(name string, value, timestamp float64)
}

// Dial connects to an MQTT broker.
func Dial(broker, clientID string) (pahomqtt.Client, error) {
	if broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	return client, nil
}

// Subscriber feeds telemetry messages into the signal store. A message is
// either a JSON batch or a bare number published on <prefix>/<SignalName>.
type Subscriber struct {
	sink   Sink
	topic  string
	qos    byte
	logger *log.Logger
	now    func() time.Time
}

// NewSubscriber constructs a subscriber for topic.
func NewSubscriber(sink Sink, topic string, qos byte, logger *log.Logger) (*Subscriber, error) {
	if sink == nil {
		return nil, errors.New("mqtt subscriber: nil sink")
	}
	if topic == "" {
		return nil, errors.New("mqtt subscriber: empty topic")
	}
	if qos > 2 {
		return nil, fmt.Errorf("mqtt subscriber: invalid qos %d", qos)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{sink: sink, topic: topic, qos: qos, logger: logger, now: time.Now}, nil
}

// Start subscribes on client. Messages are handled on paho's callback goroutine.
func (s *Subscriber) Start(client pahomqtt.Client) error {
	if client == nil {
		return errors.New("mqtt subscriber: nil client")
	}
	token := client.Subscribe(s.topic, s.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.Handle(msg)
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt subscriber: subscribe %s timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscriber: subscribe %s: %w", s.topic, err)
	}
	s.logger.Printf("mqtt subscriber: listening on %s", s.topic)
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop(client pahomqtt.Client) {
	if client == nil {
		return
	}
	if token := client.Unsubscribe(s.topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		s.logger.Printf("mqtt subscriber: unsubscribe: %v", token.Error())
	}
	client.Disconnect(disconnectQuiesce)
}

// Handle decodes one message and updates the sink. Malformed messages are
// logged and dropped.
func (s *Subscriber) Handle(msg pahomqtt.Message) int {
	if msg == nil {
		return 0
	}
	samples, err := s.decode(msg.Topic(), msg.Payload())
	if err != nil {
		s.logger.Printf("mqtt subscriber: drop message on %s: %v", msg.Topic(), err)
		return 0
	}
	for _, sample := range samples {
		s.sink.Update(sample.Name, sample.Value, sample.Timestamp)
	}
	metrics.AddTelemetryUpdates("mqtt", len(samples))
	return len(samples)
}

func (s *Subscriber) decode(topic string, payload []byte) ([]telemetry.Sample, error) {
	now := telemetry.Seconds(s.now())
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, telemetry.ErrEmptyBatch
	}
	if trimmed[0] == '{' {
		return telemetry.DecodeBatch([]byte(trimmed), now)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("unsupported payload: %w", err)
	}
	name := topic[strings.LastIndex(topic, "/")+1:]
	sample, err := telemetry.NewSample(name, value, 0, now)
	if err != nil {
		return nil, err
	}
	return []telemetry.Sample{sample}, nil
}
