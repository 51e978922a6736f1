// Package mapper places search geometry on a discrete global grid.
package mapper

import (
	"github.com/earthdata/granule-bridge/internal/core/model"
)

type Interface interface {
	CellForPoint(p model.Point, res int) (string, error)
	CellForBBox(bb model.BBox, res int) (string, error)
	Parent(cell string, parentRes int) (string, error)
}
