package presence

import "math"

const earthRadiusMeters = 6_371_008.8

// DistanceMeters is the haversine great-circle distance between a and b.
func DistanceMeters(a, b Coordinate) float64 {
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2, lon2 := radians(b.Lat), radians(b.Lon)
	sinLat := math.Sin((lat2 - lat1) / 2)
	sinLon := math.Sin((lon2 - lon1) / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(micro int64) float64 {
	return float64(micro) / 1e6 * math.Pi / 180
}
