// Package renderer provides link visual sinks: a null sink for headless
// hosts and a WebSocket feed that streams cable endpoints to an external
// viewer.
package renderer

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/attachkit/linkcore/pkg/core"
)

// Null discards all visuals.
type Null struct{}

func (Null) StartVisual(source, target core.PartID)               {}
func (Null) UpdateVisual(source core.PartID, from, to mgl64.Vec3) {}
func (Null) StopVisual(source core.PartID)                        {}
