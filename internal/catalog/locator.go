// Package catalog locates station segment files: path construction for the
// published archive tree, THREDDS catalog walking for discovery, and a
// sqlite-backed index tracking which files changed between manifest pulls.
package catalog

import (
	"fmt"

	"github.com/buoyworks/swell/internal/segment"
)

// Locator builds store paths and remote URLs for a station's segment files.
//
// The published tree uses uppercase directories for local mirrors and
// lowercase for the THREDDS server:
//
//	REALTIME/<stn>_rt.nc
//	REALTIME/<stn>_xy.nc
//	ARCHIVE/<stn>/<stn>_historic.nc
//	ARCHIVE/<stn>/<stn>_dNN.nc
type Locator struct {
	// Domain is the THREDDS server base, e.g. "http://thredds.cdip.ucsd.edu".
	Domain string
}

const dodsPath = "thredds/dodsC"

// Filename returns the file name for a segment of the given kind.
// Deployment is only meaningful for Archive segments.
func Filename(kind segment.Kind, station string, deployment int) string {
	switch kind {
	case segment.Realtime:
		return station + "_rt.nc"
	case segment.RealtimeXY:
		return station + "_xy.nc"
	case segment.Historic:
		return station + "_historic.nc"
	case segment.Archive:
		return fmt.Sprintf("%s_%s.nc", station, DeploymentLabel(deployment))
	}
	return ""
}

// DeploymentLabel formats a deployment number as its archive label, e.g. "d07"
func DeploymentLabel(n int) string {
	return fmt.Sprintf("d%02d", n)
}

// Path returns the store-relative path for a segment file on a local mirror
func (l *Locator) Path(kind segment.Kind, station string, deployment int) string {
	name := Filename(kind, station, deployment)
	switch kind {
	case segment.Realtime, segment.RealtimeXY:
		return "REALTIME/" + name
	case segment.Historic, segment.Archive:
		return "ARCHIVE/" + station + "/" + name
	}
	return name
}

// URL returns the THREDDS access URL for a segment file
func (l *Locator) URL(kind segment.Kind, station string, deployment int) string {
	name := Filename(kind, station, deployment)
	switch kind {
	case segment.Realtime, segment.RealtimeXY:
		return fmt.Sprintf("%s/%s/cdip/realtime/%s", l.Domain, dodsPath, name)
	case segment.Historic, segment.Archive:
		return fmt.Sprintf("%s/%s/cdip/archive/%s/%s", l.Domain, dodsPath, station, name)
	}
	return ""
}

// LatestPath returns the store-relative path of the rolling latest-observations
// snapshot file
func (l *Locator) LatestPath() string {
	return "REALTIME/latest_3day.nc"
}

// LatestURL returns the THREDDS access URL of the rolling latest-observations
// snapshot file
func (l *Locator) LatestURL() string {
	return fmt.Sprintf("%s/%s/cdip/realtime/latest_3day.nc", l.Domain, dodsPath)
}
