package combuf

import (
	"fmt"

	vk "github.com/NOT-REAL-GAMES/vkrt"
)

// MaxQueriesPerCmdbuf bounds the number of timestamp queries one command
// buffer may use; each timing scope consumes two, so at most 32 scopes fit.
const MaxQueriesPerCmdbuf = 64

// ScopeHandle is returned by ScopeBegin. Bit 31 is always set so a handle
// can never be confused with a raw registered scope id.
type ScopeHandle uint32

const scopeHandleBit ScopeHandle = 1 << 31

// ScopeResult is one completed timing scope, in CPU-monotonic nanoseconds.
type ScopeResult struct {
	Name        string
	BeginNanos  int64
	EndNanos    int64
}

type scopeSlot struct {
	nameID    int
	beginTick uint32
	endTick   uint32
}

type cmdbufScopeState struct {
	slots    []scopeSlot
	nextTick uint32
}

// perCmdbufScopes owns the shared query pool (sized NumBuffers*MaxQueriesPerCmdbuf)
// and the registered-scope-name table (shared across all cmdbufs, as in the
// source: scope ids are stable identifiers, not per-cmdbuf).
type perCmdbufScopes struct {
	pool       vk.QueryPool
	names      []string
	perCmdbuf  [NumBuffers]cmdbufScopeState
}

func (s *perCmdbufScopes) init(device vk.Device) error {
	pool, err := device.CreateQueryPool(&vk.QueryPoolCreateInfo{
		QueryType:  vk.QUERY_TYPE_TIMESTAMP,
		QueryCount: NumBuffers * MaxQueriesPerCmdbuf,
	})
	if err != nil {
		return fmt.Errorf("combuf: create query pool: %w", err)
	}
	s.pool = pool
	return nil
}

func (s *perCmdbufScopes) destroy(device vk.Device) {
	device.DestroyQueryPool(s.pool)
}

func (s *perCmdbufScopes) beginCmdbuf(slot int) {
	s.perCmdbuf[slot] = cmdbufScopeState{}
}

// ScopeRegister returns a stable id for name, creating it on first use.
func (c *Combuf) ScopeRegister(name string) int {
	for i, n := range c.scopes.names {
		if n == name {
			return i
		}
	}
	c.scopes.names = append(c.scopes.names, name)
	return len(c.scopes.names) - 1
}

// ScopeBegin writes a TOP_OF_PIPE timestamp and reserves a matching slot in
// the current cmdbuf. Returns -1 (as ScopeHandle) if the per-cmdbuf query
// cap is exhausted; ScopeEnd on -1 is a no-op.
func (c *Combuf) ScopeBegin(cmd vk.CommandBuffer, nameID int) ScopeHandle {
	st := &c.scopes.perCmdbuf[c.current]
	if int(st.nextTick)+2 > MaxQueriesPerCmdbuf {
		c.log.Warn().Str("scope", c.scopes.names[nameID]).Msg("timing scope cap exceeded, dropping")
		return ScopeHandle(0xFFFFFFFF)
	}

	base := uint32(c.current*MaxQueriesPerCmdbuf) + st.nextTick
	beginTick := base
	endTick := base + 1
	st.nextTick += 2

	cmd.CmdResetQueryPool(c.scopes.pool, beginTick, 2)
	cmd.CmdWriteTimestamp(vk.PIPELINE_STAGE_TOP_OF_PIPE_BIT, c.scopes.pool, beginTick)

	slotIndex := len(st.slots)
	st.slots = append(st.slots, scopeSlot{nameID: nameID, beginTick: beginTick, endTick: endTick})

	return scopeHandleBit | ScopeHandle(slotIndex)
}

// ScopeEnd writes a timestamp at stage into the matching slot's end query.
func (c *Combuf) ScopeEnd(cmd vk.CommandBuffer, handle ScopeHandle, stage vk.PipelineStageFlags) {
	if handle == ScopeHandle(0xFFFFFFFF) || handle&scopeHandleBit == 0 {
		return
	}
	slotIndex := int(handle &^ scopeHandleBit)
	st := &c.scopes.perCmdbuf[c.current]
	if slotIndex >= len(st.slots) {
		return
	}
	cmd.CmdWriteTimestamp(stage, c.scopes.pool, st.slots[slotIndex].endTick)
}

// ScopesGet reads back every scope recorded in the given cmdbuf slot,
// converting ticks to CPU-monotonic nanoseconds. cpuBaseNanos is the CPU
// timestamp (e.g. time.Now().UnixNano()) taken immediately before this
// cmdbuf's first GPU work was submitted; ticks are pinned to it, mirroring
// the source's uncalibrated fallback (no VK_EXT_calibrated_timestamps probe
// is performed — see DESIGN.md for why the source's calibration extension
// path was not wired here).
func (c *Combuf) ScopesGet(slot int, cpuBaseNanos int64) ([]ScopeResult, error) {
	st := &c.scopes.perCmdbuf[slot]
	if len(st.slots) == 0 {
		return nil, nil
	}

	first := st.slots[0].beginTick
	last := st.slots[len(st.slots)-1].endTick
	count := last - first + 1

	ticks, err := c.device.GetQueryPoolResultsU64Wait(c.scopes.pool, first, count)
	if err != nil {
		return nil, fmt.Errorf("combuf: read timing scopes: %w", err)
	}

	period := float64(c.physicalDevice.GetTimestampPeriod())
	gpuBaseTick := ticks[0]

	toNanos := func(query uint32) int64 {
		delta := float64(int64(ticks[query-first]-gpuBaseTick)) * period
		return cpuBaseNanos + int64(delta)
	}

	results := make([]ScopeResult, len(st.slots))
	for i, sl := range st.slots {
		results[i] = ScopeResult{
			Name:       c.scopes.names[sl.nameID],
			BeginNanos: toNanos(sl.beginTick),
			EndNanos:   toNanos(sl.endTick),
		}
	}
	return results, nil
}
