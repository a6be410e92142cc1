package signals

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"dispatch/internal/domain"
)

// probeOffsetDeg is the eastward offset of the probe destination, about
// 2 km at mid latitudes.
const probeOffsetDeg = 0.02

// directionsClient is the subset of *maps.Client used here.
type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// MapsTraffic derives a traffic delay factor from Google Maps directions by
// comparing duration in traffic with free-flow duration over a short probe.
type MapsTraffic struct {
	client directionsClient
}

// NewMapsTraffic creates a MapsTraffic provider with the given API key.
func NewMapsTraffic(apiKey string) (*MapsTraffic, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsTraffic{client: client}, nil
}

// Traffic returns the delay factor around loc.
func (m *MapsTraffic) Traffic(ctx context.Context, loc domain.Location) (domain.TrafficReport, error) {
	r := &maps.DirectionsRequest{
		Origin:        latLng(loc),
		Destination:   latLng(domain.Location{Lat: loc.Lat, Lng: loc.Lng + probeOffsetDeg}),
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
		TrafficModel:  maps.TrafficModelBestGuess,
	}

	routes, _, err := m.client.Directions(ctx, r)
	if err != nil {
		return domain.TrafficReport{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return domain.TrafficReport{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	factor := 1.0
	if leg.Duration > 0 && leg.DurationInTraffic > 0 {
		factor = float64(leg.DurationInTraffic) / float64(leg.Duration)
	}
	if factor < 1 {
		factor = 1
	}
	return domain.TrafficReport{DelayFactor: factor, ObservedAt: time.Now(), Live: true}, nil
}

func latLng(loc domain.Location) string {
	return fmt.Sprintf("%f,%f", loc.Lat, loc.Lng)
}
