// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BBox is a geographic bounding box in EPSG:4326 degrees ordered
// west,south,east,north. West may exceed east for boxes crossing the antimeridian.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
}

// String representation matching the OpenSearch geo:box format
func (b BBox) String() string {
	return strings.Join([]string{
		FormatCoord(b.X1), FormatCoord(b.Y1), FormatCoord(b.X2), FormatCoord(b.Y2),
	}, ",")
}

func (b BBox) Center() Point {
	lon := (b.X1 + b.X2) / 2
	if b.X1 > b.X2 {
		lon += 180
		if lon > 180 {
			lon -= 360
		}
	}
	return Point{Lon: lon, Lat: (b.Y1 + b.Y2) / 2}
}

type Point struct {
	Lon, Lat float64
}

// Expand returns the box padded by eps degrees on every side.
func (p Point) Expand(eps float64) BBox {
	return BBox{X1: p.Lon - eps, Y1: p.Lat - eps, X2: p.Lon + eps, Y2: p.Lat + eps}
}

// FormatCoord renders a coordinate rounded to micro-degrees in its shortest form.
func FormatCoord(v float64) string {
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		r = 0 // normalize -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, errors.New("expected 4 comma-separated values: minLon,minLat,maxLon,maxLat")
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	bb := BBox{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}

	if !validLon(bb.X1) || !validLon(bb.X2) {
		return BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !validLat(bb.Y1) || !validLat(bb.Y2) {
		return BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if bb.Y2 < bb.Y1 {
		return BBox{}, errors.New("coordinates must satisfy maxLat>=minLat")
	}
	return bb, nil
}

func ParsePoint(raw string) (Point, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Point{}, errors.New("expected 2 comma-separated values: lon,lat")
	}
	lon, err := parseFloat(parts[0])
	if err != nil {
		return Point{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := parseFloat(parts[1])
	if err != nil {
		return Point{}, fmt.Errorf("lat: %w", err)
	}
	if !validLon(lon) {
		return Point{}, errors.New("longitude must be in [-180,180]")
	}
	if !validLat(lat) {
		return Point{}, errors.New("latitude must be in [-90,90]")
	}
	return Point{Lon: lon, Lat: lat}, nil
}

func validLon(v float64) bool { return v >= -180 && v <= 180 }
func validLat(v float64) bool { return v >= -90 && v <= 90 }

// trim whitespace and convert to float
func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
