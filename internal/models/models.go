package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DriverRef identifies an assigned driver. Everything besides ID is an
// opaque pass-through supplied by the driver-facing client and forwarded
// verbatim in ride_accepted events.
type DriverRef struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Vehicle      string  `json:"vehicle,omitempty"`
	LicensePlate string  `json:"license_plate,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
}

// RideContext carries demand/traffic/weather signals through the ride
// record. The coordinator never interprets these; they feed the external
// pricing service and the driver-side recommendation scorer.
type RideContext struct {
	RideDemandLevel int  `json:"ride_demand_level"`
	TrafficLevel    int  `json:"traffic_level"`
	WeatherSeverity int  `json:"weather_severity"`
	TrafficBlocks   int  `json:"traffic_blocks"`
	IsHoliday       bool `json:"is_holiday"`
	IsEventNearby   bool `json:"is_event_nearby"`
	UserLoyaltyTier int  `json:"user_loyalty_tier"`
}

// Driver is a presence record in the location pipeline (Kafka -> Redis geo).
type Driver struct {
	ID      string    `json:"id"`
	Loc     Coord     `json:"loc"`
	Rating  float64   `json:"rating"` // 0..5
	Online  bool      `json:"online"`
	Updated time.Time `json:"updated"`
}
