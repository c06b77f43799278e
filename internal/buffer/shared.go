package buffer

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

var (
	// ErrAccessConflict is the sentinel wrapped by every ConflictError.
	ErrAccessConflict = errors.New("access conflict")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("shared handle already released")
)

// writing marks the borrow state while a MutGuard is outstanding. Positive
// values count outstanding read guards.
const writing = -1

// Access kinds reported in a ConflictError.
const (
	AccessRead  = "borrow"
	AccessWrite = "borrow_mut"
)

// ConflictError reports a denied borrow on a shared cell.
type ConflictError struct {
	Op      string // access that was denied
	Held    string // access currently outstanding
	Readers int64  // outstanding read guards when Held is AccessRead
	Site    string // file:line where the holder acquired its access
}

func (e *ConflictError) Error() string {
	held := "mutably borrowed"
	if e.Held == AccessRead {
		held = fmt.Sprintf("borrowed by %d reader(s)", e.Readers)
	}
	site := e.Site
	if site == "" {
		site = "unknown site"
	}
	return fmt.Sprintf("%v: %s denied, buffer already %s (last acquired at %s)", ErrAccessConflict, e.Op, held, site)
}

func (e *ConflictError) Unwrap() error {
	return ErrAccessConflict
}

type cell struct {
	data       []byte
	refs       atomic.Int64
	state      atomic.Int64
	trackSites bool
	site       atomic.Pointer[string]
}

func (c *cell) acquired() {
	if !c.trackSites {
		return
	}
	site := callerSite(3)
	c.site.Store(&site)
}

func (c *cell) conflict(op string) *ConflictError {
	err := &ConflictError{Op: op, Held: AccessWrite}
	if n := c.state.Load(); n > 0 {
		err.Held = AccessRead
		err.Readers = n
	}
	if s := c.site.Load(); s != nil {
		err.Site = *s
	}
	return err
}

// Shared is a reference-counted handle to a single text buffer. Cloning a
// handle never copies the buffer; every handle observes the same bytes.
// Mutation goes through BorrowMut, which admits one writer at a time and no
// writer while readers are active. The check happens at run time and a
// violation returns a *ConflictError instead of blocking.
type Shared struct {
	c        *cell
	released atomic.Bool
}

// Option configures a new shared cell.
type Option func(*cell)

// WithSiteTracking records the file:line of every successful borrow so a
// ConflictError can name the current holder. It costs a stack lookup per
// borrow, so timed loops leave it off.
func WithSiteTracking() Option {
	return func(c *cell) { c.trackSites = true }
}

// NewShared copies s into a new cell and returns its first handle.
func NewShared(s string, opts ...Option) *Shared {
	c := &cell{data: []byte(s)}
	for _, opt := range opts {
		opt(c)
	}
	c.refs.Store(1)
	return &Shared{c: c}
}

func (s *Shared) live() (*cell, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	return s.c, nil
}

// Clone returns a new handle to the same buffer and bumps the reference count.
func (s *Shared) Clone() (*Shared, error) {
	c, err := s.live()
	if err != nil {
		return nil, err
	}
	c.refs.Add(1)
	return &Shared{c: c}, nil
}

// Release drops this handle. Releasing twice is a no-op.
func (s *Shared) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.c.refs.Add(-1)
	}
}

// RefCount returns the number of live handles to the buffer.
func (s *Shared) RefCount() int64 {
	return s.c.refs.Load()
}

// Borrow acquires read access. It fails while a MutGuard is outstanding.
func (s *Shared) Borrow() (*Guard, error) {
	c, err := s.live()
	if err != nil {
		return nil, err
	}
	for {
		cur := c.state.Load()
		if cur == writing {
			return nil, c.conflict(AccessRead)
		}
		if c.state.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	c.acquired()
	return &Guard{c: c}, nil
}

// BorrowMut acquires exclusive write access. It fails while any other guard,
// read or write, is outstanding.
func (s *Shared) BorrowMut() (*MutGuard, error) {
	c, err := s.live()
	if err != nil {
		return nil, err
	}
	if !c.state.CompareAndSwap(0, writing) {
		return nil, c.conflict(AccessWrite)
	}
	c.acquired()
	return &MutGuard{c: c}, nil
}

// Snapshot copies the current contents out under a read borrow.
func (s *Shared) Snapshot() (string, error) {
	g, err := s.Borrow()
	if err != nil {
		return "", err
	}
	defer g.Release()
	return g.String(), nil
}

// Guard is an outstanding read borrow.
type Guard struct {
	c    *cell
	done atomic.Bool
}

func (g *Guard) live() *cell {
	if g.done.Load() {
		panic("buffer: use of released read guard")
	}
	return g.c
}

// Len returns the buffer length in bytes.
func (g *Guard) Len() int {
	return len(g.live().data)
}

// String copies the buffer contents out.
func (g *Guard) String() string {
	return string(g.live().data)
}

// Release ends the borrow. Subsequent calls are no-ops.
func (g *Guard) Release() {
	if g.done.CompareAndSwap(false, true) {
		g.c.state.Add(-1)
	}
}

// MutGuard is the single outstanding write borrow.
type MutGuard struct {
	c    *cell
	done atomic.Bool
}

func (g *MutGuard) live() *cell {
	if g.done.Load() {
		panic("buffer: use of released write guard")
	}
	return g.c
}

// Append adds suffix in place; every handle sees the change.
func (g *MutGuard) Append(suffix string) {
	c := g.live()
	c.data = append(c.data, suffix...)
}

// Len returns the buffer length in bytes, including appended suffixes.
func (g *MutGuard) Len() int {
	return len(g.live().data)
}

// String copies the buffer contents out.
func (g *MutGuard) String() string {
	return string(g.live().data)
}

// Release ends the borrow. Subsequent calls are no-ops.
func (g *MutGuard) Release() {
	if g.done.CompareAndSwap(false, true) {
		g.c.state.CompareAndSwap(writing, 0)
	}
}

func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
