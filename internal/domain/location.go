package domain

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Address carries the human-readable part of a pickup or drop-off point.
type Address struct {
	Line     string `json:"line"`
	City     string `json:"city,omitempty"`
	Building string `json:"building,omitempty"`
	Floor    string `json:"floor,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Place is a location plus its address metadata.
type Place struct {
	Location Location `json:"location"`
	Address  Address  `json:"address"`
}
