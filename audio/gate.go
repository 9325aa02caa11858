package audio

import "sync"

// Gate keeps the frames whose energy is above the threshold. It never affects
// what is transmitted.
type Gate struct {
	threshold float64

	mu       sync.Mutex
	retained []byte
	frames   int
	passed   int
}

// NewGate returns a gate using threshold, or GateThreshold when threshold <= 0.
func NewGate(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = GateThreshold
	}
	return &Gate{threshold: threshold}
}

// Observe records frame and reports whether it passed the gate.
func (g *Gate) Observe(frame Frame) bool {
	pcm := frame.Bytes()
	pass := frame.Energy() > g.threshold

	g.mu.Lock()
	defer g.mu.Unlock()
	g.frames++
	if pass {
		g.passed++
		g.retained = append(g.retained, pcm...)
	}
	return pass
}

// Retained returns a copy of the PCM that passed the gate.
func (g *Gate) Retained() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]byte(nil), g.retained...)
}

// Counts returns the number of observed frames and how many passed.
func (g *Gate) Counts() (frames, passed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames, g.passed
}
