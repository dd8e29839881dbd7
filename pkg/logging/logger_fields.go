package logging

import (
	"fmt"
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Error records err's message, or null for a nil error
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Component(name string) Field { return String("component", name) }
func NodeID(id string) Field      { return String("node_id", id) }
func TaskID(id string) Field      { return String("task_id", id) }
func WorkerID(id int) Field       { return Int("worker_id", id) }
func Device(name string) Field    { return String("device", name) }
func Generation(g uint64) Field   { return Uint64("generation", g) }
func Iteration(i int) Field       { return Int("iteration", i) }
func LayoutType(t string) Field   { return String("layout_type", t) }
func Count(n int) Field           { return Int("count", n) }
func Path(p string) Field         { return String("path", p) }

// Backend takes any Stringer so layout backends and kernel programs log
// under the same key
func Backend(b fmt.Stringer) Field {
	return String("backend", b.String())
}

func Alpha(a float64) Field {
	return Field{Key: "alpha", Value: a}
}

// Latency is logged as a duration string such as "1.5ms"
func Latency(d time.Duration) Field {
	return Field{Key: "latency", Value: d.String()}
}
