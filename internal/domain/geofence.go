package domain

// GeofenceType identifies which lifecycle point a geofence guards.
type GeofenceType string

const (
	GeofencePickupApproach   GeofenceType = "pickup_approach"
	GeofencePickupArrival    GeofenceType = "pickup_arrival"
	GeofenceDeliveryApproach GeofenceType = "delivery_approach"
	GeofenceDeliveryArrival  GeofenceType = "delivery_arrival"
)

// GeofenceAction is fired when a courier enters an area.
type GeofenceAction string

const (
	ActionNotifyCustomer   GeofenceAction = "notify_customer"
	ActionNotifyRestaurant GeofenceAction = "notify_restaurant"
	ActionMarkArrived      GeofenceAction = "mark_arrived_pickup"
	ActionMarkPickedUp     GeofenceAction = "mark_picked_up"
	ActionMarkDelivered    GeofenceAction = "mark_delivered"
)

// GeofenceArea is a circular zone bound to one (courier, request) pair.
type GeofenceArea struct {
	ID        string           `json:"id"`
	CourierID string           `json:"courier_id"`
	RequestID string           `json:"request_id"`
	Center    Location         `json:"center"`
	RadiusM   float64          `json:"radius_m"`
	Type      GeofenceType     `json:"type"`
	Actions   []GeofenceAction `json:"actions"`
}
