package transport

// Emission is a live audio graph for one session. Created by a Sink, torn
// down on stop/pause/seek/completion.
type Emission interface {
	// SetVolume adjusts the gain stage without restarting the graph.
	SetVolume(v float64)
	// SetRate adjusts the rate multiplier without restarting the graph.
	SetRate(ratio float64)
	// Stop silences the graph and releases its resources. Idempotent.
	Stop()
}

// Sink turns a buffer region into sound. Implementations own the rendering
// device; the transport owns position truth.
type Sink interface {
	// Start begins emitting buf from offsetSeconds at the given speed and
	// volume. onEnd fires exactly once if the emission drains naturally; it
	// does not fire on Stop.
	Start(buf *Buffer, offsetSeconds, speed, volume float64, onEnd func()) (Emission, error)
	// Close releases the device.
	Close() error
}
