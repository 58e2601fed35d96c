package testutil

import (
	"fmt"
	"strings"
)

// SourceHeader is the column header of a telemetry source file.
const SourceHeader = "Time,Longitude,Latitude,Altitude,Roll (deg),Pitch (deg),Yaw (deg)"

// FlightCSV returns a source with n rows one second apart. Longitude and
// latitude drift by 0.01 degrees per row and altitude climbs 10 units per row.
func FlightCSV(n int) string {
	var b strings.Builder
	b.WriteString(SourceHeader)
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%.2f,%.2f,%d,%d,%d,%d\n",
			i, 7+0.01*float64(i), 46+0.01*float64(i), 500+10*i, i, 2*i, 90+i)
	}
	return b.String()
}
