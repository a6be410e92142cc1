package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/domain"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type mockClient struct {
	mu           sync.Mutex
	sent         []published
	err          error
	hang         bool
	Disconnected bool
}

func (m *mockClient) IsConnected() bool       { return true }
func (m *mockClient) Disconnect(quiesce uint) { m.Disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &mockToken{err: m.err, hang: m.hang}
}

type mockToken struct {
	err  error
	hang bool
}

func (t *mockToken) Wait() bool                       { return !t.hang }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return !t.hang }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

func TestMQTTNotifierOffersPerCourier(t *testing.T) {
	mc := &mockClient{}
	n := NewMQTTNotifierWithClient(mc, 1)

	offer := Offer{SessionID: "s1", RequestID: "r1", Mode: domain.BiddingModeSealed, MinimumBid: 1200}
	require.NoError(t, n.NotifyCouriers(context.Background(), []string{"c1", "c2"}, offer))

	require.Len(t, mc.sent, 2)
	assert.Equal(t, "couriers/c1/offers", mc.sent[0].topic)
	assert.Equal(t, "couriers/c2/offers", mc.sent[1].topic)
	assert.Equal(t, byte(1), mc.sent[0].qos)

	var got Offer
	require.NoError(t, json.Unmarshal(mc.sent[0].payload, &got))
	assert.Equal(t, offer.SessionID, got.SessionID)
	assert.Equal(t, int64(1200), got.MinimumBid)
}

func TestMQTTNotifierCustomerAndSupport(t *testing.T) {
	mc := &mockClient{}
	n := NewMQTTNotifierWithClient(mc, 0)
	ctx := context.Background()

	require.NoError(t, n.NotifyCustomer(ctx, "cust1", Notification{Type: NotificationCourierApproaching, Title: "On the way"}))
	require.NoError(t, n.NotifyRestaurant(ctx, "rest1", Notification{Type: NotificationCourierArrived}))
	require.NoError(t, n.EscalateToSupport(ctx, Notification{Type: NotificationEscalation, RequestID: "r1"}))

	require.Len(t, mc.sent, 3)
	assert.Equal(t, "customers/cust1/notifications", mc.sent[0].topic)
	assert.Equal(t, "restaurants/rest1/notifications", mc.sent[1].topic)
	assert.Equal(t, "support/escalations", mc.sent[2].topic)

	var got Notification
	require.NoError(t, json.Unmarshal(mc.sent[0].payload, &got))
	assert.Equal(t, "cust1", got.RecipientID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMQTTNotifierErrors(t *testing.T) {
	boom := errors.New("broker down")
	n := NewMQTTNotifierWithClient(&mockClient{err: boom}, 1)
	err := n.NotifyCouriers(context.Background(), []string{"c1", "c2"}, Offer{})
	assert.ErrorIs(t, err, boom)

	n = NewMQTTNotifierWithClient(&mockClient{hang: true}, 1)
	err = n.NotifyCustomer(context.Background(), "cust1", Notification{})
	assert.ErrorIs(t, err, ErrPublishTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mc := &mockClient{}
	n = NewMQTTNotifierWithClient(mc, 1)
	assert.ErrorIs(t, n.EscalateToSupport(ctx, Notification{}), context.Canceled)
	assert.Empty(t, mc.sent)
}

func TestMQTTNotifierCloseDisconnects(t *testing.T) {
	mc := &mockClient{}
	NewMQTTNotifierWithClient(mc, 1).Close()
	assert.True(t, mc.Disconnected)
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLogNotifier(nil)
	ctx := context.Background()
	assert.NoError(t, n.NotifyCouriers(ctx, []string{"c1"}, Offer{}))
	assert.NoError(t, n.NotifyCustomer(ctx, "cust", Notification{}))
	assert.NoError(t, n.NotifyRestaurant(ctx, "rest", Notification{}))
	assert.NoError(t, n.EscalateToSupport(ctx, Notification{}))
}
