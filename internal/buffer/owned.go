package buffer

// Owned is an exclusively owned text buffer. Cloning it copies every byte.
type Owned struct {
	data []byte
}

// NewOwned copies s into a new owned buffer.
func NewOwned(s string) *Owned {
	return &Owned{data: []byte(s)}
}

// Clone returns an independent duplicate. Mutating either one never affects
// the other.
func (o *Owned) Clone() *Owned {
	return &Owned{data: cloneBytes(o.data)}
}

// Append adds suffix to the end of the buffer in place.
func (o *Owned) Append(suffix string) {
	o.data = append(o.data, suffix...)
}

// Len returns the length in bytes.
func (o *Owned) Len() int {
	return len(o.data)
}

func (o *Owned) String() string {
	return string(o.data)
}

// cloneBytes allocates exactly len(b) so a following append has to grow,
// matching a plain string clone followed by a push.
func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
