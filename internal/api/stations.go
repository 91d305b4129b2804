package api

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/buoyworks/swell/internal/export"
	"github.com/buoyworks/swell/internal/geo"
	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/series"
	"github.com/buoyworks/swell/internal/stats"
)

// stitcherFor builds a stitcher bound to one station
func (s *Server) stitcherFor(station string) *series.Stitcher {
	return series.NewStitcher(s.opener, station, s.maxDeployments, s.logger)
}

// parseWindow reads start/end query parameters, each either RFC 3339 or
// epoch seconds. Absent bounds default to the configured trailing window.
func (s *Server) parseWindow(c *fiber.Ctx) (segment.Window, error) {
	now := time.Now().UTC()

	end := now.Add(30 * time.Minute)
	start := now.Add(-s.defaultWindow)

	if q := c.Query("start"); q != "" {
		t, err := parseTime(q)
		if err != nil {
			return segment.Window{}, fiber.NewError(fiber.StatusBadRequest, "invalid start: "+err.Error())
		}
		start = t
	}
	if q := c.Query("end"); q != "" {
		t, err := parseTime(q)
		if err != nil {
			return segment.Window{}, fiber.NewError(fiber.StatusBadRequest, "invalid end: "+err.Error())
		}
		end = t
	}

	if end.Before(start) {
		return segment.Window{}, fiber.NewError(fiber.StatusBadRequest, "end precedes start")
	}

	return segment.Window{Start: float64(start.Unix()), End: float64(end.Unix())}, nil
}

func parseTime(q string) (time.Time, error) {
	if secs, err := strconv.ParseFloat(q, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, q)
}

func (s *Server) parseSet(c *fiber.Ctx) quality.Set {
	if q := c.Query("set"); q != "" {
		return quality.Normalize(q)
	}
	return s.defaultSet
}

func (s *Server) parseMask(c *fiber.Ctx) bool {
	return c.QueryBool("mask", true)
}

// seriesPayload converts a series into its JSON shape. NaN is not
// representable in JSON, so invalid cells become nulls.
func seriesPayload(res *series.Series) fiber.Map {
	columns := fiber.Map{}
	for name, col := range res.Columns {
		stride := col.Stride
		if stride < 1 {
			stride = 1
		}
		if stride == 1 {
			vals := make([]any, col.Rows())
			for i := range vals {
				vals[i] = cellValue(col, i, 0, stride)
			}
			columns[name] = vals
		} else {
			rows := make([][]any, col.Rows())
			for i := range rows {
				row := make([]any, stride)
				for j := range row {
					row[j] = cellValue(col, i, j, stride)
				}
				rows[i] = row
			}
			columns[name] = rows
		}
	}
	for name, text := range res.Strings {
		columns[name] = text
	}
	return columns
}

func cellValue(col *series.Column, row, bin, stride int) any {
	if !col.Valid[row] {
		return nil
	}
	v := col.Values[row*stride+bin]
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func (s *Server) sendSeries(c *fiber.Ctx, station string, res *series.Series, win segment.Window) error {
	return c.JSON(fiber.Map{
		"station": station,
		"start":   win.Start,
		"end":     win.End,
		"columns": seriesPayload(res),
	})
}

// parametersHandler serves the standard wave parameter set
func (s *Server) parametersHandler(c *fiber.Ctx) error {
	return s.bundleHandler(c, func(st *series.Stitcher, win segment.Window) (*series.Series, error) {
		return st.Parameters(c.Context(), win, s.parseSet(c), s.parseMask(c))
	})
}

// spectraHandler serves the spectral variable set
func (s *Server) spectraHandler(c *fiber.Ctx) error {
	return s.bundleHandler(c, func(st *series.Stitcher, win segment.Window) (*series.Series, error) {
		return st.Spectra(c.Context(), win, s.parseSet(c), s.parseMask(c))
	})
}

// xyzHandler serves displacement series stitched across the deployment chain
func (s *Server) xyzHandler(c *fiber.Ctx) error {
	return s.bundleHandler(c, func(st *series.Stitcher, win segment.Window) (*series.Series, error) {
		return st.XYZ(c.Context(), win, s.parseSet(c))
	})
}

func (s *Server) bundleHandler(c *fiber.Ctx, fetch func(*series.Stitcher, segment.Window) (*series.Series, error)) error {
	station := c.Params("station")

	win, err := s.parseWindow(c)
	if err != nil {
		return err
	}

	res, err := fetch(s.stitcherFor(station), win)
	if err != nil {
		return s.seriesError(c, station, err)
	}

	return s.sendSeries(c, station, res, win)
}

// seriesHandler serves arbitrary variables. With at= and records= it anchors
// the window on the record nearest the target time instead of using
// start/end.
func (s *Server) seriesHandler(c *fiber.Ctx) error {
	station := c.Params("station")

	vars := splitVars(c.Query("vars"))
	if len(vars) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "vars parameter is required")
	}

	req := series.Request{
		Variables: vars,
		Set:       s.parseSet(c),
		ApplyMask: s.parseMask(c),
	}

	st := s.stitcherFor(station)

	if q := c.Query("at"); q != "" {
		target, err := parseTime(q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid at: "+err.Error())
		}
		records := c.QueryInt("records", 1)

		res, err := st.GetSeriesAt(c.Context(), float64(target.Unix()), records, req)
		if err != nil {
			return s.seriesError(c, station, err)
		}
		return s.sendSeries(c, station, res, segment.Window{})
	}

	win, err := s.parseWindow(c)
	if err != nil {
		return err
	}
	req.Window = win

	res, err := st.GetSeries(c.Context(), req)
	if err != nil {
		return s.seriesError(c, station, err)
	}

	return s.sendSeries(c, station, res, win)
}

// seriesParquetHandler serves arbitrary variables as a Parquet file
func (s *Server) seriesParquetHandler(c *fiber.Ctx) error {
	station := c.Params("station")

	vars := splitVars(c.Query("vars"))
	if len(vars) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "vars parameter is required")
	}

	win, err := s.parseWindow(c)
	if err != nil {
		return err
	}

	res, err := s.stitcherFor(station).GetSeries(c.Context(), series.Request{
		Variables: vars,
		Window:    win,
		Set:       s.parseSet(c),
		ApplyMask: s.parseMask(c),
	})
	if err != nil {
		return s.seriesError(c, station, err)
	}
	if res.Empty() {
		return fiber.NewError(fiber.StatusNotFound, "no records in window")
	}

	var buf bytes.Buffer
	if err := export.WriteParquet(&buf, res); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set("Content-Type", "application/vnd.apache.parquet")
	c.Set("Content-Disposition", `attachment; filename="`+station+`.parquet"`)
	return c.Send(buf.Bytes())
}

// metaHandler serves station metadata with the position in degree-minute form
func (s *Server) metaHandler(c *fiber.Ctx) error {
	station := c.Params("station")

	meta, err := s.stitcherFor(station).Meta(c.Context())
	if err != nil {
		return s.seriesError(c, station, err)
	}

	payload := fiber.Map{
		"station":    station,
		"variables":  seriesPayload(meta.Series),
		"attributes": meta.Attributes,
	}

	if pt, ok := metaPoint(meta.Series); ok {
		dm := pt.Split()
		payload["position"] = fiber.Map{
			"latitude":  pt.Lat,
			"longitude": pt.Lon,
			"deg_lat":   dm.DegLat,
			"min_lat":   dm.MinLat,
			"deg_lon":   dm.DegLon,
			"min_lon":   dm.MinLon,
		}
	}

	return c.JSON(payload)
}

// metaPoint extracts the buoy position from decoded meta variables
func metaPoint(res *series.Series) (geo.Point, bool) {
	lat, ok1 := scalar(res, "metaDeployLatitude")
	lon, ok2 := scalar(res, "metaDeployLongitude")
	if !ok1 || !ok2 {
		lat, ok1 = scalar(res, "metaLatitude")
		lon, ok2 = scalar(res, "metaLongitude")
	}
	if !ok1 || !ok2 {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

func scalar(res *series.Series, name string) (float64, bool) {
	col, ok := res.Columns[name]
	if !ok || col.Rows() == 0 || !col.Valid[0] {
		return 0, false
	}
	return col.Values[0], true
}

// statsHandler serves the station availability summary
func (s *Server) statsHandler(c *fiber.Ctx) error {
	station := c.Params("station")

	reporter := stats.NewReporter(s.stitcherFor(station), s.opener, s.maxDeployments, s.logger)
	summary, err := reporter.Summarize(c.Context())
	if err != nil {
		return s.seriesError(c, station, err)
	}

	return c.JSON(fiber.Map{
		"station": station,
		"summary": summary,
	})
}

// filesHandler lists the segment files a station publishes
func (s *Server) filesHandler(c *fiber.Ctx) error {
	station := c.Params("station")

	max := s.maxDeployments
	if max <= 0 {
		max = series.DefaultMaxDeployments
	}

	files, err := s.opener.ListStation(c.Context(), station, max)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{
		"station": station,
		"files":   files,
	})
}

// latestHandler serves the cached latest observations for all stations
func (s *Server) latestHandler(c *fiber.Ctx) error {
	if s.refresher == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "latest observations are not enabled")
	}

	obs, refreshed := s.refresher.Observations()
	return c.JSON(fiber.Map{
		"refreshed":    refreshed.Format(time.RFC3339),
		"stations":     len(obs),
		"observations": obs,
	})
}

// latestStationHandler serves the cached latest observation for one station
func (s *Server) latestStationHandler(c *fiber.Ctx) error {
	if s.refresher == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "latest observations are not enabled")
	}

	o, ok := s.refresher.Station(c.Params("station"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "station not in snapshot")
	}
	return c.JSON(o)
}

// catalogChangedHandler syncs the modification manifest and reports changes
func (s *Server) catalogChangedHandler(c *fiber.Ctx) error {
	if s.index == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "catalog index is not enabled")
	}

	changed, err := s.index.Sync(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	return c.JSON(fiber.Map{
		"time":    time.Now().UTC().Format(time.RFC3339),
		"changed": changed,
	})
}

// seriesError maps engine errors to HTTP statuses
func (s *Server) seriesError(c *fiber.Ctx, station string, err error) error {
	switch {
	case errors.Is(err, segment.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "station "+station+" has no matching segment files")
	case errors.Is(err, series.ErrNoAnchor):
		return fiber.NewError(fiber.StatusNotFound, "no record anchors the target time for station "+station)
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}

func splitVars(q string) []string {
	if q == "" {
		return nil
	}
	var vars []string
	for _, v := range strings.Split(q, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vars = append(vars, v)
		}
	}
	return vars
}
