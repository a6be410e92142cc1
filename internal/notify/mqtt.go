package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the subset of the paho client used here.
type Client interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier pushes notifications to per-recipient MQTT topics.
type MQTTNotifier struct {
	client Client
	qos    byte
	now    func() time.Time
}

var _ Notifier = (*MQTTNotifier)(nil)

// NewMQTTNotifier connects to broker.
func NewMQTTNotifier(broker, clientID string, qos byte) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}
	return NewMQTTNotifierWithClient(client, qos), nil
}

// NewMQTTNotifierWithClient wraps an already connected client.
func NewMQTTNotifierWithClient(c Client, qos byte) *MQTTNotifier {
	return &MQTTNotifier{client: c, qos: qos, now: time.Now}
}

// OfferTopic is where a courier receives bidding offers.
func OfferTopic(courierID string) string { return "couriers/" + courierID + "/offers" }

func customerTopic(id string) string   { return "customers/" + id + "/notifications" }
func restaurantTopic(id string) string { return "restaurants/" + id + "/notifications" }

const supportTopic = "support/escalations"

func (m *MQTTNotifier) NotifyCouriers(ctx context.Context, courierIDs []string, offer Offer) error {
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	var errs []error
	for _, id := range courierIDs {
		if err := m.publish(ctx, OfferTopic(id), payload); err != nil {
			errs = append(errs, fmt.Errorf("courier %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MQTTNotifier) NotifyCustomer(ctx context.Context, customerID string, n Notification) error {
	return m.publishNotification(ctx, customerTopic(customerID), customerID, n)
}

func (m *MQTTNotifier) NotifyRestaurant(ctx context.Context, restaurantID string, n Notification) error {
	return m.publishNotification(ctx, restaurantTopic(restaurantID), restaurantID, n)
}

func (m *MQTTNotifier) EscalateToSupport(ctx context.Context, n Notification) error {
	return m.publishNotification(ctx, supportTopic, "", n)
}

func (m *MQTTNotifier) publishNotification(ctx context.Context, topic, recipient string, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	if recipient != "" {
		n.RecipientID = recipient
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return m.publish(ctx, topic, payload)
}

func (m *MQTTNotifier) publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (m *MQTTNotifier) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
