package vm

import "github.com/sbclang/sbcvm/hostimport"

// Config mirrors engine.Config's shape from the teacher (explicit fields,
// functional zero-value defaults) rather than a generic map[string]any
// bag, per SPEC_FULL.md §5.
type Config struct {
	// SkipVerify disables the automatic verify.Verify pass New otherwise
	// runs before accepting a module. spec.md §6 exposes this as a
	// `verify: bool` option that defaults to true (verification on); a
	// Go bool defaults to false, so the option is inverted here to keep
	// the zero Config the safe, spec-default behavior. Set only for
	// deliberately-broken test fixtures exercising a trap the verifier
	// would otherwise reject at load time.
	SkipVerify bool

	// EnableJIT is observable only through execution counts; this engine
	// has no JIT tier, so it is accepted and ignored.
	EnableJIT bool

	Argv []string
	Envp map[string]string

	// ImportResolver is consulted after the built-in core.os/core.fs/
	// core.log/core.dl modules report "unknown symbol".
	ImportResolver hostimport.Resolver

	// StackMax overrides the module header's declared stack_max when
	// non-zero.
	StackMax uint32

	// GCThreshold is the initial live-object count that triggers a
	// collection; it doubles after each successful collection.
	GCThreshold int
}

// DefaultGCThreshold is used when a Config leaves GCThreshold at its zero
// value.
const DefaultGCThreshold = 256

func (c Config) gcThreshold() int {
	if c.GCThreshold <= 0 {
		return DefaultGCThreshold
	}
	return c.GCThreshold
}
