// Package exif pulls GPS coordinates out of uploaded photo metadata,
// so a report filed from a geotagged photo gets a location even when
// the reporter's device did not supply one.
package exif

import (
	"bytes"

	goexif "github.com/rwcarlsen/goexif/exif"
)

// LatLong extracts the GPS position embedded in an image. ok is false
// when the image carries no usable position: no metadata, values out
// of range, or the 0,0 pair cameras write as a default.
func LatLong(data []byte) (lat, lng float64, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	meta, err := goexif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	lat, lng, err = meta.LatLong()
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	if lat == 0 && lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}
