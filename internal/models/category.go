package models

// Category selects the places API filter, e.g. "service.financial.atm".
type Category string

// DefaultCategory is the filter active before the user picks one.
const DefaultCategory Category = "service.financial.atm"

// CategoryOption describes one filter button offered to clients.
type CategoryOption struct {
	ID    Category `json:"id"`
	Label string   `json:"label"`
}

var categoryCatalogue = []CategoryOption{
	{ID: "service.financial.atm", Label: "ATMs"},
	{ID: "service.financial.bank", Label: "Banks"},
	{ID: "catering.restaurant", Label: "Restaurants"},
	{ID: "catering.cafe", Label: "Cafes"},
	{ID: "commercial.supermarket", Label: "Supermarkets"},
	{ID: "healthcare.pharmacy", Label: "Pharmacies"},
	{ID: "healthcare.hospital", Label: "Hospitals"},
	{ID: "service.vehicle.fuel", Label: "Fuel stations"},
	{ID: "accommodation.hotel", Label: "Hotels"},
	{ID: "parking", Label: "Parking"},
}

// Categories returns a copy of the filter catalogue.
func Categories() []CategoryOption {
	out := make([]CategoryOption, len(categoryCatalogue))
	copy(out, categoryCatalogue)
	return out
}
