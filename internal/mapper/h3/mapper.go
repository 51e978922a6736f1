package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/earthdata/granule-bridge/internal/core/model"
	"github.com/earthdata/granule-bridge/internal/mapper"
)

var _ mapper.Interface = (*Mapper)(nil)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellForPoint(p model.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellForBBox returns the cell containing the box centre, so antimeridian boxes land on the right side.
func (m *Mapper) CellForBBox(bb model.BBox, res int) (string, error) {
	return m.CellForPoint(bb.Center(), res)
}

// Parent coarsens a cell; used to group nearby searches.
func (m *Mapper) Parent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return "", fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return "", fmt.Errorf("invalid h3 cell %q", cell)
	}
	if cur := c.Resolution(); parentRes > cur {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, cur)
	} else if parentRes == cur {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
