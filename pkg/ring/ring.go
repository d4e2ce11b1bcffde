package ring

// DefaultCapacity is the history length used when a non-positive capacity is requested.
const DefaultCapacity = 10

// Samples is a fixed-capacity circular history of readings.
// Once full, each Push overwrites the oldest value.
//
// Samples is not safe for concurrent use; it is owned by the control loop.
type Samples struct {
	buf   []float64
	next  int // write index
	count int // number of valid slots, saturates at len(buf)
}

// New creates a buffer holding at most capacity values.
func New(capacity int) *Samples {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Samples{buf: make([]float64, capacity)}
}

// Push stores v at the write index and advances it.
func (s *Samples) Push(v float64) {
	s.buf[s.next] = v
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
}

// Mean returns the arithmetic mean of the stored values, or 0 when empty.
func (s *Samples) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	// Until the first wrap the valid values occupy buf[:count]; after it, all of buf.
	var sum float64
	for _, v := range s.buf[:s.count] {
		sum += v
	}
	return sum / float64(s.count)
}

// Len returns the number of valid values.
func (s *Samples) Len() int {
	return s.count
}

// Cap returns the buffer capacity.
func (s *Samples) Cap() int {
	return len(s.buf)
}

// Last returns the most recently pushed value.
func (s *Samples) Last() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.buf[(s.next-1+len(s.buf))%len(s.buf)], true
}

// Values returns a copy of the valid values, oldest first.
func (s *Samples) Values() []float64 {
	out := make([]float64, s.count)
	start := (s.next - s.count + len(s.buf)) % len(s.buf)
	for i := range s.count {
		out[i] = s.buf[(start+i)%len(s.buf)]
	}
	return out
}
