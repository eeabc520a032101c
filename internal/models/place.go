package models

// Default labels used when a places feature carries no name or address.
const (
	UnnamedPlace     = "Unnamed"
	UnknownAddress   = "No address"
	ApproximateLabel = "Your approximate location"
)

// Place is a single point of interest returned by a places search.
type Place struct {
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
}

// GeocodeResult is the first match of a forward geocoding query.
type GeocodeResult struct {
	Coordinates Coordinates `json:"coordinates"`
	Formatted   string      `json:"formatted"`
}
