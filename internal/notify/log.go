package notify

import (
	"context"

	"dispatch/internal/logger"
)

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	log logger.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Nop{}
	}
	return &LogNotifier{log: log}
}

func (l *LogNotifier) NotifyCouriers(_ context.Context, courierIDs []string, offer Offer) error {
	for _, id := range courierIDs {
		l.log.Infof("[NOTIFICATION] Type=%s, Recipient=%s, Session=%s, Request=%s, MinimumBid=%d",
			NotificationOffer, id, offer.SessionID, offer.RequestID, offer.MinimumBid)
	}
	return nil
}

func (l *LogNotifier) NotifyCustomer(_ context.Context, customerID string, n Notification) error {
	l.send(customerID, n)
	return nil
}

func (l *LogNotifier) NotifyRestaurant(_ context.Context, restaurantID string, n Notification) error {
	l.send(restaurantID, n)
	return nil
}

func (l *LogNotifier) EscalateToSupport(_ context.Context, n Notification) error {
	l.log.Warnf("[ESCALATION] Request=%s, Title=%s, Message=%s", n.RequestID, n.Title, n.Message)
	return nil
}

func (l *LogNotifier) send(recipient string, n Notification) {
	l.log.Infof("[NOTIFICATION] Type=%s, Recipient=%s, Title=%s, Message=%s",
		n.Type, recipient, n.Title, n.Message)
}
