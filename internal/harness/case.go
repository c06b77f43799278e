package harness

import (
	"fmt"

	"github.com/croncommander/clonebench/internal/buffer"
)

// Variant names a buffer representation under test.
type Variant string

const (
	VariantOwned  Variant = "owned-copy"
	VariantShared Variant = "shared-cell"
)

// Variants lists every representation in the order the harness runs them.
var Variants = []Variant{VariantOwned, VariantShared}

// ParseVariant accepts a variant name as used on the command line.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
}

// Workload is the operation performed in each iteration.
type Workload string

const (
	// WorkloadClone duplicates the representation and nothing else.
	WorkloadClone Workload = "clone"
	// WorkloadCloneAppend duplicates, then appends the suffix to the duplicate.
	WorkloadCloneAppend Workload = "clone-append"
)

// ParseWorkload accepts a workload name as used on the command line.
func ParseWorkload(s string) (Workload, error) {
	switch Workload(s) {
	case WorkloadClone, WorkloadCloneAppend:
		return Workload(s), nil
	}
	return "", fmt.Errorf("%w: unknown workload %q", ErrInvalidConfig, s)
}

// Operation runs one iteration and returns a value derived from its result,
// which the runner consumes.
type Operation func() (int, error)

// CaseOptions tune how a case is built.
type CaseOptions struct {
	Suffix string
	// Contend keeps a second alias holding mutable access to the shared cell
	// for the lifetime of the case, so every mutation attempt conflicts.
	// Owned copies have no aliases and ignore it.
	Contend bool
}

// Case is one representation wrapped around the input, ready to be timed.
type Case struct {
	Variant  Variant
	Workload Workload
	Bytes    int
	Op       Operation

	teardown []func()
}

// Close releases everything the case holds.
func (c *Case) Close() {
	for i := len(c.teardown) - 1; i >= 0; i-- {
		c.teardown[i]()
	}
	c.teardown = nil
}

// NewCase builds the representation for variant once and returns the
// operation that the runner repeats.
func NewCase(variant Variant, workload Workload, input string, opts CaseOptions) (*Case, error) {
	if _, err := ParseWorkload(string(workload)); err != nil {
		return nil, err
	}
	c := &Case{Variant: variant, Workload: workload, Bytes: len(input)}

	switch variant {
	case VariantOwned:
		c.Op = ownedOp(buffer.NewOwned(input), workload, opts.Suffix)
	case VariantShared:
		var bufOpts []buffer.Option
		if opts.Contend {
			bufOpts = append(bufOpts, buffer.WithSiteTracking())
		}
		root := buffer.NewShared(input, bufOpts...)
		c.teardown = append(c.teardown, root.Release)

		if opts.Contend {
			alias, err := root.Clone()
			if err != nil {
				c.Close()
				return nil, err
			}
			c.teardown = append(c.teardown, alias.Release)
			held, err := alias.BorrowMut()
			if err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to hold contending borrow: %w", err)
			}
			c.teardown = append(c.teardown, held.Release)
		}
		c.Op = sharedOp(root, workload, opts.Suffix)
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, variant)
	}
	return c, nil
}

func ownedOp(orig *buffer.Owned, workload Workload, suffix string) Operation {
	var last *buffer.Owned
	return func() (int, error) {
		dup := orig.Clone()
		if workload == WorkloadCloneAppend {
			dup.Append(suffix)
		}
		last = dup
		return last.Len(), nil
	}
}

func sharedOp(root *buffer.Shared, workload Workload, suffix string) Operation {
	return func() (int, error) {
		h, err := root.Clone()
		if err != nil {
			return 0, err
		}
		defer h.Release()

		if workload == WorkloadClone {
			return int(h.RefCount()), nil
		}

		g, err := h.BorrowMut()
		if err != nil {
			return 0, err
		}
		defer g.Release()
		g.Append(suffix)
		return g.Len(), nil
	}
}
