package render

import (
	"testing"

	"github.com/NOT-REAL-GAMES/vkrt/accel"
	"github.com/NOT-REAL-GAMES/vkrt/rtcvar"
	"github.com/stretchr/testify/assert"
)

func TestDrawListRecordsInOrderAndFlattensInstances(t *testing.T) {
	g := &Glue{CVars: rtcvar.NewRegistry()}

	g.BeginLabel("opaque pass")
	g.Draw(accel.Instance{CustomIndex: 1})
	g.Sky(accel.Instance{CustomIndex: 2})
	g.Draw(accel.Instance{CustomIndex: 3})
	g.EndLabel()

	assert.Len(t, g.Commands(), 5)
	assert.Equal(t, DrawLabelBegin, g.Commands()[0].Kind)
	assert.Equal(t, DrawLabelEnd, g.Commands()[4].Kind)

	instances := g.instancesFromCommands()
	assert.Len(t, instances, 3)
	assert.EqualValues(t, 1, instances[0].CustomIndex)
	assert.EqualValues(t, 2, instances[1].CustomIndex)
	assert.EqualValues(t, 3, instances[2].CustomIndex)
}

func TestRequestPipelineReloadConsumedOnce(t *testing.T) {
	g := &Glue{CVars: rtcvar.NewRegistry()}
	g.RequestPipelineReload()

	assert.True(t, g.CVars.ConsumeReloadRequest())
	assert.False(t, g.CVars.ConsumeReloadRequest(), "reload request is cleared after being consumed")
}
