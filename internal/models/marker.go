package models

import "github.com/google/uuid"

// MarkerKind tells where a marker came from.
type MarkerKind string

const (
	MarkerUser   MarkerKind = "user"
	MarkerPlace  MarkerKind = "place"
	MarkerSearch MarkerKind = "search"
)

// Marker is a labelled pin on the map. Label holds an HTML fragment.
type Marker struct {
	ID          uuid.UUID   `json:"id"`
	Kind        MarkerKind  `json:"kind"`
	Coordinates Coordinates `json:"coordinates"`
	Label       string      `json:"label"`
}
