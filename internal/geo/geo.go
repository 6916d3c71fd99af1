// Package geo converts between the simulation's vector types, the "x,y,z"
// string form used by the host interface and config files, and the WKB
// point form stored in the database. Geometry columns hold WKB because
// SQLite has no spatial awareness and the values must survive a string
// round trip through migrations.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParseVec3 parses an "x,y,z" string into a vector. Two components are
// accepted with z defaulting to zero.
func ParseVec3(coords string) (mgl64.Vec3, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return mgl64.Vec3{}, ErrInvalidCoordinates
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mgl64.Vec3{}, ErrInvalidCoordinates
		}
		v[i] = f
	}
	return v, nil
}

// FormatVec3 renders a vector as "x,y,z" with enough precision for a
// lossless float64 round trip.
func FormatVec3(v mgl64.Vec3) string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(v.X(), 'g', -1, 64),
		strconv.FormatFloat(v.Y(), 'g', -1, 64),
		strconv.FormatFloat(v.Z(), 'g', -1, 64))
}

// PointFromVec3 builds an XYZ geometry point for WKB storage.
func PointFromVec3(v mgl64.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X(), Y: v.Y()},
		Z:    v.Z(),
		Type: geom.DimXYZ,
	})
}

// Vec3FromPoint extracts the vector from a geometry point. An empty point
// yields the zero vector.
func Vec3FromPoint(p geom.Point) mgl64.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{c.X, c.Y, c.Z}
}

// WKBFromVec3 serializes a vector as a WKB point blob.
func WKBFromVec3(v mgl64.Vec3) []byte {
	return PointFromVec3(v).AsBinary()
}

// Vec3FromWKB parses a WKB point blob back into a vector.
func Vec3FromWKB(b []byte) (mgl64.Vec3, error) {
	g, err := geom.UnmarshalWKB(b)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	p, ok := g.AsPoint()
	if !ok {
		return mgl64.Vec3{}, ErrInvalidCoordinates
	}
	return Vec3FromPoint(p), nil
}
