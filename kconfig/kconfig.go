// Package kconfig holds the boot-time constants spec.md names inline, and
// the functional-option style used to build a Config, mirroring the
// teacher's eventloop.Options pattern (a slice of Option funcs applied
// over a private config struct before the subsystem starts).
package kconfig

import "flag"

const (
	// PriMin is the lowest legal thread priority.
	PriMin = 0
	// PriMax is the highest legal thread priority.
	PriMax = 63
	// PriDefault is the default priority for ordinary threads. The idle
	// thread runs at PriMin instead.
	PriDefault = 31

	// DefaultQuantum is the number of timer ticks in a scheduling quantum.
	DefaultQuantum = 4

	// TimerFreq is the number of timer ticks per simulated second.
	TimerFreq = 100

	// StackGrowLimit is how far below the user stack pointer a fault may
	// land and still be treated as a stack-growth request, in bytes.
	StackGrowLimit = 32

	// MaxStackBytes is the maximum a user stack may grow to.
	MaxStackBytes = 8 * 1024 * 1024

	// PageSize is the simulated hardware page size in bytes.
	PageSize = 4096

	// SectorSize is the simulated block device sector size in bytes.
	SectorSize = 512

	// SectorsPerPage is how many sectors one page occupies in swap.
	SectorsPerPage = PageSize / SectorSize

	// DonationSanityDepth bounds the priority-donation propagation walk;
	// exceeding it indicates a lock cycle in the user program and is a
	// programmer assertion, not a kernel bug.
	DonationSanityDepth = 8

	// PhysBase is the (simulated) boundary between user and kernel
	// virtual address space; user esp starts here and grows down.
	PhysBase = 0xC0000000
)

// Config is the set of boot-time choices the kernel command line affects.
type Config struct {
	// MLFQS selects the multi-level feedback queue scheduler. When
	// false, priority donation is used instead. Mutually exclusive
	// per spec.md §4.2.
	MLFQS bool

	// Quantum is the number of ticks per scheduling quantum.
	Quantum uint
}

// Option configures a Config.
type Option func(*Config)

// WithMLFQS toggles MLFQS mode (the `-o mlfqs` kernel command-line flag).
func WithMLFQS(enabled bool) Option {
	return func(c *Config) { c.MLFQS = enabled }
}

// WithQuantum overrides the scheduling quantum length, in ticks.
func WithQuantum(ticks uint) Option {
	return func(c *Config) { c.Quantum = ticks }
}

// New builds a Config from defaults plus the given options.
func New(opts ...Option) Config {
	c := Config{Quantum: DefaultQuantum}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// ParseFlags parses the kernel command line (as flag would see argv[1:])
// into a Config. It mirrors the `-o mlfqs` flag spec.md §6 describes.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	opt := fs.String("o", "", `kernel option; "mlfqs" selects the MLFQS scheduler instead of priority donation`)
	quantum := fs.Uint("quantum", DefaultQuantum, "timer ticks per scheduling quantum")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return New(WithMLFQS(*opt == "mlfqs"), WithQuantum(*quantum)), nil
}
