package evidence

import (
	"io"

	"github.com/rwcarlsen/goexif/exif"
)

// Coordinates is a GPS position read from photo metadata.
type Coordinates struct {
	Lat float64
	Lng float64
}

// FirstGPS returns the GPS position of the first file carrying EXIF GPS
// tags. Every file is rewound before returning.
func FirstGPS(files []File) (Coordinates, bool) {
	for _, f := range files {
		if c, ok := gpsOf(f); ok {
			return c, true
		}
	}
	return Coordinates{}, false
}

func gpsOf(f File) (Coordinates, bool) {
	if f.Content == nil {
		return Coordinates{}, false
	}
	defer func() { _, _ = f.Content.Seek(0, io.SeekStart) }()

	if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
		return Coordinates{}, false
	}
	x, err := exif.Decode(f.Content)
	if err != nil {
		return Coordinates{}, false
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lng: lng}, true
}
