package domain

import "strconv"

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// Return coordinates as "lat,lng", the form the Google Maps APIs take.
func (c Coordinates) LatLng() string {
	return strconv.FormatFloat(c.Lat, 'f', 7, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 7, 64)
}
