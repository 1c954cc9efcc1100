package services

import "math"

const (
	priceTolerance        = 0.10
	relaxedPriceTolerance = 0.15
	sizeTolerance         = 0.05
	roomsTolerance        = 0.5
)

// IsMatch decides whether two listings that already share a bucket are the
// same property. First satisfied branch wins: equal address, then equal
// geo, then equal image (with a relaxed price tolerance).
//
// Bucket membership already implies equal keys, so the tolerance checks
// rarely reject anything here. The behaviour is kept as is.
func IsMatch(a, b Fingerprint) bool {
	switch {
	case a.AddressKey != "" && b.AddressKey != "" && a.AddressKey == b.AddressKey:
		return metricsWithin(a, b, priceTolerance)
	case a.GeoKey != "" && b.GeoKey != "" && a.GeoKey == b.GeoKey:
		return metricsWithin(a, b, priceTolerance)
	case a.ImageKey != "" && b.ImageKey != "" && a.ImageKey == b.ImageKey:
		return metricsWithin(a, b, relaxedPriceTolerance)
	}
	return false
}

func metricsWithin(a, b Fingerprint, priceTol float64) bool {
	return relativeWithin(a.Price, b.Price, priceTol) &&
		relativeWithin(a.Size, b.Size, sizeTolerance) &&
		absoluteWithin(a.Rooms, b.Rooms, roomsTolerance)
}

// A zero on either side passes: missing data must not block a match.
func relativeWithin(x, y, tol float64) bool {
	if x == 0 || y == 0 {
		return true
	}
	return math.Abs(x-y)/math.Max(math.Abs(x), math.Abs(y)) <= tol
}

func absoluteWithin(x, y, tol float64) bool {
	if x == 0 || y == 0 {
		return true
	}
	return math.Abs(x-y) <= tol
}
