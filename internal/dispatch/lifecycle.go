package dispatch

import (
	"context"
	"fmt"

	"dispatch/internal/domain"
	"dispatch/internal/notify"
)

// HandleGeofenceAction carries out one geofence action for the courier
// holding the area's request.
func (s *Service) HandleGeofenceAction(ctx context.Context, area domain.GeofenceArea, action domain.GeofenceAction) error {
	switch action {
	case domain.ActionMarkPickedUp:
		return s.markPickedUp(ctx, area.RequestID, area.CourierID)
	case domain.ActionMarkDelivered:
		_, err := s.Complete(ctx, area.RequestID)
		return err
	}

	req, err := s.load(ctx, area.RequestID)
	if err != nil {
		return err
	}
	switch action {
	case domain.ActionNotifyRestaurant:
		s.notifyRestaurant(ctx, *req, notify.NotificationCourierApproaching, "Courier approaching",
			fmt.Sprintf("Courier %s is a few minutes away for order %s.", area.CourierID, req.ID))
	case domain.ActionMarkArrived:
		s.notifyRestaurant(ctx, *req, notify.NotificationCourierArrived, "Courier arrived",
			fmt.Sprintf("Courier %s has arrived for order %s.", area.CourierID, req.ID))
	case domain.ActionNotifyCustomer:
		if area.Type == domain.GeofenceDeliveryArrival {
			s.notifyCustomer(ctx, *req, notify.NotificationCourierArrived, "Courier arrived", "Your courier has arrived.")
		} else {
			s.notifyCustomer(ctx, *req, notify.NotificationCourierApproaching, "Courier approaching", "Your courier is almost there.")
		}
	default:
		return fmt.Errorf("unknown geofence action %q", action)
	}
	return nil
}

// markPickedUp moves an assigned request into transit.
func (s *Service) markPickedUp(ctx context.Context, requestID, courierID string) error {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return err
	}
	defer unlock()

	req, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == domain.RequestStatusInTransit {
		return nil
	}
	if req.Status != domain.RequestStatusAssigned || req.CourierID != courierID {
		return fmt.Errorf("%w: request %s is %s with courier %q", ErrInvalidTransition, requestID, req.Status, req.CourierID)
	}
	picked := req.WithStatus(domain.RequestStatusInTransit, courierID, s.now())
	if err := s.requests.Update(ctx, &picked); err != nil {
		return fmt.Errorf("store request %s: %w", requestID, err)
	}
	s.log.Infof("request %s picked up by %s", requestID, courierID)
	return nil
}

func (s *Service) notifyCustomer(ctx context.Context, req domain.DeliveryRequest, t notify.NotificationType, title, msg string) {
	if s.notifier == nil || req.CustomerID == "" {
		return
	}
	n := notify.Notification{
		Type:        t,
		RecipientID: req.CustomerID,
		RequestID:   req.ID,
		Title:       title,
		Message:     msg,
		Data:        map[string]any{"courier_id": req.CourierID, "status": string(req.Status)},
		CreatedAt:   s.now(),
	}
	if err := s.notifier.NotifyCustomer(ctx, req.CustomerID, n); err != nil {
		s.log.Warnf("notify customer of %s: %v", req.ID, err)
	}
}

func (s *Service) notifyRestaurant(ctx context.Context, req domain.DeliveryRequest, t notify.NotificationType, title, msg string) {
	if s.notifier == nil || req.RestaurantID == "" {
		return
	}
	n := notify.Notification{
		Type:        t,
		RecipientID: req.RestaurantID,
		RequestID:   req.ID,
		Title:       title,
		Message:     msg,
		Data:        map[string]any{"courier_id": req.CourierID},
		CreatedAt:   s.now(),
	}
	if err := s.notifier.NotifyRestaurant(ctx, req.RestaurantID, n); err != nil {
		s.log.Warnf("notify restaurant of %s: %v", req.ID, err)
	}
}
