// Package render is the L5 Render/Meatpipe glue: it owns the RT resource
// graph and acceleration-structure builder for one frame loop, records the
// host's per-frame draw-command list, and exposes the CVar-driven pipeline
// reload trigger spec.md §6 describes.
package render

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/accel"
	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/geometry"
	"github.com/NOT-REAL-GAMES/vkrt/resources"
	"github.com/NOT-REAL-GAMES/vkrt/rtcvar"
	"github.com/NOT-REAL-GAMES/vkrt/seq"
	"github.com/NOT-REAL-GAMES/vkrt/staging"
	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// DrawKind tags one variant of the per-frame draw-command list (spec.md §9's
// tagged-union DrawLabelBegin|DrawLabelEnd|DrawDraw|DrawSky).
type DrawKind int

const (
	DrawLabelBegin DrawKind = iota
	DrawLabelEnd
	DrawDraw
	DrawSky
)

// DrawCmd is one recorded draw-list entry. Only the fields relevant to Kind
// are meaningful; this mirrors the source's tagged-union-over-a-plain-struct
// idiom rather than a Go interface, since the list is drained in bulk by one
// consumer and never type-switched on by callers outside this package.
type DrawCmd struct {
	Kind  DrawKind
	Label string        // DrawLabelBegin
	Instance accel.Instance // DrawDraw
	SkyInstance accel.Instance // DrawSky
}

// Glue ties the resource graph, acceleration builder, and CVar registry
// together for one frame loop — the explicit successor to the source's
// g_res/g_accel/cvar globals.
type Glue struct {
	Graph    *resources.Graph
	Accel    *accel.Builder
	CVars    *rtcvar.Registry
	commands seq.Dynamic[DrawCmd]
}

// New wires an already-constructed graph, accel builder, and CVar registry
// into one glue object. Construction order of those three is the caller's
// responsibility (vkcore.Context builds them in L0->L5 order).
func New(graph *resources.Graph, accelBuilder *accel.Builder, cvars *rtcvar.Registry) *Glue {
	return &Glue{Graph: graph, Accel: accelBuilder, CVars: cvars}
}

// RequestPipelineReload is rt_debug_reload_pipelines: sets the reload flag,
// which the next BeginFrame consumes and reports to its caller. Nothing in
// this package rebuilds pipelines.
func (g *Glue) RequestPipelineReload() { g.CVars.RequestPipelineReload() }

// BeginLabel/EndLabel/Draw/Sky append one tagged-union entry to the current
// frame's draw list.
func (g *Glue) BeginLabel(name string) { g.commands.Append(DrawCmd{Kind: DrawLabelBegin, Label: name}) }
func (g *Glue) EndLabel()              { g.commands.Append(DrawCmd{Kind: DrawLabelEnd}) }
func (g *Glue) Draw(inst accel.Instance) {
	g.commands.Append(DrawCmd{Kind: DrawDraw, Instance: inst})
}
func (g *Glue) Sky(inst accel.Instance) {
	g.commands.Append(DrawCmd{Kind: DrawSky, SkyInstance: inst})
}

// Commands returns the recorded draw list for this frame.
func (g *Glue) Commands() []DrawCmd { return g.commands.Items() }

// instancesFromCommands flattens the recorded DrawDraw/DrawSky entries into
// the TLAS instance list prepare_tlas needs, in recorded order.
func (g *Glue) instancesFromCommands() []accel.Instance {
	cmds := g.commands.Items()
	instances := make([]accel.Instance, 0, len(cmds))
	for _, c := range cmds {
		switch c.Kind {
		case DrawDraw:
			instances = append(instances, c.Instance)
		case DrawSky:
			instances = append(instances, c.SkyInstance)
		}
	}
	return instances
}

// BeginFrame drains the reload-pipelines request (callers rebuild pipeline
// state when it reports true), then performs the prev-frame resource swap
// ahead of any producer work this frame.
func (g *Glue) BeginFrame(cb *combuf.Combuf, cmd vk.CommandBuffer, discontinuity bool) (reloadRequested bool) {
	reloadRequested = g.CVars.ConsumeReloadRequest()
	g.Graph.FrameBeginStateChange(cb, cmd, discontinuity || reloadRequested)
	return reloadRequested
}

// EndFrame builds every queued BLAS and the TLAS from this frame's recorded
// draw list, registers the TLAS into the resource graph's fixed slot, and
// clears the draw list for the next frame.
func (g *Glue) EndFrame(cb *combuf.Combuf, cmd vk.CommandBuffer, geomBuf *geometry.Buffer, arena *staging.Arena) error {
	instances := g.instancesFromCommands()
	tlas, err := g.Accel.PrepareTLAS(cb, cmd, geomBuf, arena, instances)
	if err != nil {
		return fmt.Errorf("render: end_frame: %w", err)
	}
	if err := g.Graph.RegisterAccel("tlas", tlas.Handle); err != nil {
		return fmt.Errorf("render: end_frame: register tlas: %w", err)
	}
	g.commands.Clear()
	g.Accel.Flip()
	return nil
}
