package replay

import (
	"iter"

	"github.com/flight-replay/backend/internal/models"
)

// Frames yields one replay frame per table row, in row order.
func Frames(table *models.FlightTable) iter.Seq[models.Frame] {
	return func(yield func(models.Frame) bool) {
		for i := 0; i < table.Len(); i++ {
			f := models.Frame{
				Time:  table.Time[i],
				Lat:   table.Latitude[i],
				Lon:   table.Longitude[i],
				Alt:   table.Altitude[i],
				Roll:  table.Roll[i],
				Pitch: table.Pitch[i],
				Yaw:   table.Yaw[i],
			}
			if !yield(f) {
				return
			}
		}
	}
}

// CollectFrames materialises Frames(table).
func CollectFrames(table *models.FlightTable) []models.Frame {
	frames := make([]models.Frame, 0, table.Len())
	for f := range Frames(table) {
		frames = append(frames, f)
	}
	return frames
}
