package rng

// LCG parameters (63-bit modulus).
const (
	multiplier uint64 = 2806196910506780709
	increment  uint64 = 1
	mask       uint64 = (1 << 63) - 1
	norm              = 1.0 / float64(1<<63)
)

// Stream is one random-number stream. It is not safe for concurrent use;
// each rank owns its own stream.
type Stream struct {
	seed     int64
	state    uint64
	position uint64
}

// New creates a stream positioned at the start of the sequence for seed.
func New(seed int64) *Stream {
	s := &Stream{}
	s.Reseed(seed)
	return s
}

// Reseed resets the stream to position zero of the sequence for seed.
func (s *Stream) Reseed(seed int64) {
	s.seed = seed
	s.state = uint64(seed) & mask
	s.position = 0
}

// Seed returns the seed the stream was created with.
func (s *Stream) Seed() int64 {
	return s.seed
}

// Position returns how many variates have been drawn since the seed.
func (s *Stream) Position() uint64 {
	return s.position
}

// Uniform draws the next variate in [0, 1).
func (s *Stream) Uniform() float64 {
	s.state = (multiplier*s.state + increment) & mask
	s.position++
	return float64(s.state) * norm
}

// Skip advances the stream by n variates in O(log n).
//
// Uses the standard LCG jump: the n-fold composition of x -> g*x + c is
// x -> G*x + C with G = g^n and C = c*(g^n - 1)/(g - 1), both computable
// by repeated squaring mod 2^63.
func (s *Stream) Skip(n uint64) {
	s.skipKeepingCount(n)
}

// SkipTo positions the stream at an absolute position from the seed.
func (s *Stream) SkipTo(position uint64) {
	s.state = uint64(s.seed) & mask
	s.position = 0
	s.skipKeepingCount(position)
}

func (s *Stream) skipKeepingCount(n uint64) {
	count := n
	g, c := multiplier, increment
	gNew, cNew := uint64(1), uint64(0)
	for n > 0 {
		if n&1 == 1 {
			gNew = (gNew * g) & mask
			cNew = (cNew*g + c) & mask
		}
		c = ((g + 1) * c) & mask
		g = (g * g) & mask
		n >>= 1
	}
	s.state = (gNew*s.state + cNew) & mask
	s.position += count
}
