package mqtt

import (
	"context"
	"encoding/json"
	"errors"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	commands "groundstation-safety/internal/commands/domain"
)

// Client is the publishing half of a paho client.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

type message struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value uint64  `json:"value"`
	TS    float64 `json:"ts"`
}

// Publisher sends commands to the vehicle over MQTT.
type Publisher struct {
	client Client
	topic  string
	qos    byte
}

// NewPublisher constructs a publisher for topic.
func NewPublisher(client Client, topic string, qos byte) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("command publisher: nil client")
	}
	if topic == "" {
		return nil, errors.New("command publisher: empty topic")
	}
	if qos > 2 {
		return nil, errors.New("command publisher: invalid qos")
	}
	return &Publisher{client: client, topic: topic, qos: qos}, nil
}

// Publish sends cmd and waits for the broker to accept it or ctx to end.
func (p *Publisher) Publish(ctx context.Context, cmd commands.Command) error {
	payload, err := json.Marshal(message{
		ID:    cmd.ID,
		Name:  cmd.Name,
		Value: cmd.Value,
		TS:    float64(cmd.CreatedAt.UnixMilli()) / 1000,
	})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
