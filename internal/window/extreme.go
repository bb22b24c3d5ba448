package window

type point struct {
	ts    float64
	value float64
}

// RollingExtreme tracks the maximum and minimum of a value over a trailing time
// window using monotonic queues, giving amortized O(1) add, evict and query.
type RollingExtreme struct {
	span float64
	maxQ []point
	minQ []point
}

// NewRollingExtreme creates a tracker over span seconds.
func NewRollingExtreme(span float64) *RollingExtreme {
	return &RollingExtreme{span: span}
}

// Span returns the window length in seconds.
func (r *RollingExtreme) Span() float64 {
	return r.span
}

// Add records value at ts and evicts points older than ts - span.
func (r *RollingExtreme) Add(ts, value float64) {
	for len(r.maxQ) > 0 && r.maxQ[len(r.maxQ)-1].value <= value {
		r.maxQ = r.maxQ[:len(r.maxQ)-1]
	}
	r.maxQ = append(r.maxQ, point{ts, value})

	for len(r.minQ) > 0 && r.minQ[len(r.minQ)-1].value >= value {
		r.minQ = r.minQ[:len(r.minQ)-1]
	}
	r.minQ = append(r.minQ, point{ts, value})

	r.Evict(ts)
}

// Evict drops points whose age exceeds the span.
func (r *RollingExtreme) Evict(now float64) {
	r.maxQ = evictQueue(r.maxQ, now, r.span)
	r.minQ = evictQueue(r.minQ, now, r.span)
}

func evictQueue(q []point, now, span float64) []point {
	i := 0
	for i < len(q) && now-q[i].ts > span {
		i++
	}
	if i == 0 {
		return q
	}
	return append(q[:0], q[i:]...)
}

// Empty reports whether no point is retained.
func (r *RollingExtreme) Empty() bool {
	return len(r.maxQ) == 0 || len(r.minQ) == 0
}

// Max returns the window maximum, or 0 when empty.
func (r *RollingExtreme) Max() float64 {
	if len(r.maxQ) == 0 {
		return 0
	}
	return r.maxQ[0].value
}

// Min returns the window minimum, or 0 when empty.
func (r *RollingExtreme) Min() float64 {
	if len(r.minQ) == 0 {
		return 0
	}
	return r.minQ[0].value
}

// IsHigh reports whether value is at or above the retained maximum.
func (r *RollingExtreme) IsHigh(value float64) bool {
	return !r.Empty() && value >= r.Max()
}

// IsLow reports whether value is at or below the retained minimum.
func (r *RollingExtreme) IsLow(value float64) bool {
	return !r.Empty() && value <= r.Min()
}
