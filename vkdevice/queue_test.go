package vkdevice

import (
	"testing"

	"github.com/andewx/vkframe"
	"github.com/stretchr/testify/assert"
)

func TestQueueFamilies(t *testing.T) {
	shared := queueFamilies{graphics: 0, present: 0, hasGraphics: true, hasPresent: true}
	assert.True(t, shared.complete())
	assert.False(t, shared.separate())
	assert.Len(t, shared.createInfos(), 1)
	assert.Nil(t, shared.indices())

	split := queueFamilies{graphics: 0, present: 2, hasGraphics: true, hasPresent: true}
	assert.True(t, split.separate())
	infos := split.createInfos()
	assert.Len(t, infos, 2)
	assert.Equal(t, uint32(2), infos[1].QueueFamilyIndex)
	assert.Equal(t, []uint32{0, 2}, split.indices())

	assert.False(t, queueFamilies{hasGraphics: true}.complete())
}

func TestQueueIDs(t *testing.T) {
	d := &Device{families: queueFamilies{graphics: 1, present: 1}}
	assert.Equal(t, d.GraphicsQueue(), d.PresentQueue(), "one family aliases")

	d.families.present = 3
	assert.NotEqual(t, d.GraphicsQueue(), d.PresentQueue())
	_, ok := d.queue(vkframe.Queue(9))
	assert.False(t, ok)
}
