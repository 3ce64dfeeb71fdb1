package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameTimeWraps(t *testing.T) {
	e := &Engine{frames: math.MaxUint32 - 3}
	e.advance(8)
	assert.Equal(t, uint32(1), e.wraps)
	assert.Equal(t, uint32(4), e.frames)
	assert.Equal(t, int64(1)<<32|4, e.FrameTime())

	e.advance(4)
	assert.Equal(t, int64(1)<<32|8, e.FrameTime())
}

func TestStateString(t *testing.T) {
	for s, name := range map[State]string{
		Stopped:  "stopped",
		Starting: "starting",
		Running:  "running",
		Halted:   "halted",
		State(9): "unknown",
	} {
		assert.Equal(t, name, s.String())
	}
}
