package ring_buffer

// bufImpl keeps the most recent len(buffer) samples. Once full, every Add
// overwrites the oldest samples.
type bufImpl struct {
	buffer []int16
	head   int
	filled int
}

func New(size int) Interface {
	if size < 1 {
		size = 1
	}

	return &bufImpl{
		buffer: make([]int16, size),
	}
}

func (r *bufImpl) Add(samples []int16) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}

	r.filled = min(r.filled+len(samples), len(r.buffer))
}

// Read returns the retained samples, oldest first. Slots never written are
// not included.
func (r *bufImpl) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % len(r.buffer)
	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}
	return samples
}

func (r *bufImpl) Len() int {
	return r.filled
}

func (r *bufImpl) Cap() int {
	return len(r.buffer)
}

func (r *bufImpl) Clear() {
	for i := 0; i < len(r.buffer); i++ {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}
