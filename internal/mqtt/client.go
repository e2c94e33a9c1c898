package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// Client is the part of paho.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type BrokerOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// Connect dials the broker with a retained last-will that marks every entity
// unavailable. Every (re)connect republishes the last state.
func (p *Publisher) Connect(opts BrokerOptions) error {
	clientOpts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetWill(p.topics.availability(), payloadOffline, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.Resync() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", "err", err)
		})

	client := paho.NewClient(clientOpts)
	p.mu.Lock()
	p.client = client
	p.conn = client
	p.mu.Unlock()

	token := client.Connect()
	if token.WaitTimeout(connectTimeout) {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect to mqtt broker in time")
}

// Close marks entities unavailable and disconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	if p.conn.IsConnected() {
		token := p.conn.Publish(p.topics.availability(), 1, true, payloadOffline)
		token.WaitTimeout(publishTimeout)
	}
	p.conn.Disconnect(disconnectQuiesce)
	p.conn = nil
	p.client = nil
}
