package models

// LocationSource tags how a user position was obtained.
type LocationSource string

const (
	SourceDevice LocationSource = "device"
	SourceIP     LocationSource = "ip"
	SourceFailed LocationSource = "failed"
)

// DeviceReport is what the client's geolocation API produced: either a fix or an error.
type DeviceReport struct {
	Coordinates *Coordinates `json:"device,omitempty"`
	Error       string       `json:"device_error,omitempty"`
}
