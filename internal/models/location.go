package models

// Location is a fully resolved geographic position. Coordinates are always
// accompanied by a non-empty address; a partial resolution is never returned.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}
