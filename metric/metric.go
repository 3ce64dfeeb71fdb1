// Package metric publishes engine counters with expvar. Counters are
// grouped by component type and safe to update from the real-time
// goroutine.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dudk/console/signal"
)

const componentsLabel = "console.components"

const (
	// CycleCounter measures number of processed cycles.
	CycleCounter = "Cycles"
	// SkipCounter measures number of cycles skipped because of contention.
	SkipCounter = "Skipped"
	// XrunCounter measures number of over- and underruns.
	XrunCounter = "Xruns"
	// FrameCounter measures number of processed frames.
	FrameCounter = "Frames"
	// DurationCounter counts what's the duration of processed signal.
	DurationCounter = "Duration"
	// LoadCounter is the processing time of the last cycle.
	LoadCounter = "Load"
	// ComponentCounter counts number of measured components.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		CycleCounter,
		SkipCounter,
		XrunCounter,
		FrameCounter,
		DurationCounter,
		LoadCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component type.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Measure captures counters of a single component instance.
type Measure struct {
	*metric
	sampleRate     int
	frames         int
	bufferDuration time.Duration
}

// Meter registers a component and returns its measure.
func Meter(component interface{}, sampleRate int) *Measure {
	metric := components.get(getType(component))
	metric.components.Add(1)
	return &Measure{
		metric:     metric,
		sampleRate: sampleRate,
	}
}

// SetSampleRate changes sample rate used to compute signal duration.
func (m *Measure) SetSampleRate(sampleRate int) {
	m.sampleRate = sampleRate
	m.frames = 0
}

// Cycle captures a processed cycle of frames that took provided time.
func (m *Measure) Cycle(frames int, took time.Duration) {
	m.cycles.Add(1)
	m.samples.Add(int64(frames))
	// recalculate buffer duration only when buffer size has changed
	if m.frames != frames {
		m.frames = frames
		m.bufferDuration = signal.DurationOf(m.sampleRate, int64(frames))
	}
	m.duration.add(m.bufferDuration)
	m.load.set(took)
}

// Skip captures a cycle that emitted silence.
func (m *Measure) Skip() {
	m.skipped.Add(1)
}

// Xrun captures over- or underrun reported by the backend.
func (m *Measure) Xrun() {
	m.xruns.Add(1)
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(componentType string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(componentType)
	m.m[componentType] = metric
	return metric
}

type metric struct {
	components *expvar.Int
	cycles     *expvar.Int
	skipped    *expvar.Int
	xruns      *expvar.Int
	samples    *expvar.Int
	load       *duration
	duration   *duration
}

func newMetric(componentType string) *metric {
	m := metric{
		components: expvar.NewInt(key(componentType, ComponentCounter)),
		cycles:     expvar.NewInt(key(componentType, CycleCounter)),
		skipped:    expvar.NewInt(key(componentType, SkipCounter)),
		xruns:      expvar.NewInt(key(componentType, XrunCounter)),
		samples:    expvar.NewInt(key(componentType, FrameCounter)),
		load:       &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(componentType, LoadCounter), m.load)
	expvar.Publish(key(componentType, DurationCounter), m.duration)
	return &m
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter)
}

func getType(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d atomic.Int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(v.d.Load()).String())
}

func (v *duration) add(delta time.Duration) {
	v.d.Add(int64(delta))
}

func (v *duration) set(value time.Duration) {
	v.d.Store(int64(value))
}
