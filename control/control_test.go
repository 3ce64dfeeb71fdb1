package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/console/control"
	"github.com/dudk/console/event"
)

func TestList(t *testing.T) {
	var l control.List
	assert.Equal(t, 0.0, l.Eval(10))

	l.Add(100, 1)
	l.Add(0, 0)
	l.Add(50, 0.2)
	l.Add(50, 0.5)
	assert.Equal(t, 3, l.Len())

	var tests = []struct {
		frame    int64
		expected float64
	}{
		{frame: -10, expected: 0},
		{frame: 0, expected: 0},
		{frame: 25, expected: 0.25},
		{frame: 50, expected: 0.5},
		{frame: 75, expected: 0.75},
		{frame: 100, expected: 1},
		{frame: 200, expected: 1},
	}
	for _, c := range tests {
		assert.InDelta(t, c.expected, l.Eval(c.frame), 1e-9, "frame %d", c.frame)
	}

	l.Remove(0, 60)
	assert.Equal(t, []control.Point{{Frame: 100, Value: 1}}, l.Points())
}

func TestControl(t *testing.T) {
	bus := event.NewBus()
	sub := bus.Subscribe(4, event.ControlChanged)
	c := control.New("gain", control.WithRange(0, 2, 1), control.WithBus(bus, "route"))
	assert.Equal(t, 1.0, c.Value())

	assert.True(t, c.Set(5))
	assert.Equal(t, 2.0, c.Value())
	assert.False(t, c.Set(2))
	m := <-sub.C()
	assert.Equal(t, "route", m.Source)
	assert.Equal(t, 2.0, m.Value)

	c.Reset()
	assert.Equal(t, 1.0, c.Value())

	dst := make([]float32, 4)
	// automation is off
	assert.False(t, c.Series(0, dst))

	c.SetAutoState(control.Write)
	c.Record(0)
	c.Set(0)
	c.Record(4)
	c.SetAutoState(control.Play)
	assert.True(t, c.Series(0, dst))
	assert.Equal(t, []float32{1, 0.75, 0.5, 0.25}, dst)
	assert.Equal(t, 0.25, c.Value())

	c.SetAutoState(control.Touch)
	assert.True(t, c.Automating())
	c.StartTouch()
	assert.False(t, c.Series(0, dst))
	c.StopTouch()

	c.Edit(func(l *control.List) { l.Clear() })
	assert.False(t, c.Series(0, dst))

	s, ok := control.ParseAutoState("touch")
	assert.True(t, ok)
	assert.Equal(t, control.Touch, s)
	assert.Equal(t, "touch", s.String())
}
