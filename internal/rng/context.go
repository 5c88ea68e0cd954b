package rng

// Context owns the process-wide root stream. Components that need randomness
// receive a Context (or streams derived from its root) instead of reaching
// for package-level state, so several independent pipelines can coexist in
// one process.
//
// SeedRoot and NewState both mutate the root and are intended for pipeline
// construction time. They are not safe to call concurrently with each other.
type Context struct {
	root *State
}

// NewContext returns a Context whose root stream is seeded with the given
// value.
func NewContext(seed uint64) *Context {
	return &Context{root: New(seed)}
}

// NewRandomContext returns a Context whose root stream is seeded from
// external entropy. Use it when reproducibility is not needed.
func NewRandomContext() *Context {
	return &Context{root: NewFullyRandom()}
}

// SeedRoot reinitializes the root stream in place. Streams already derived
// from the root are unaffected.
func (c *Context) SeedRoot(seed uint64) {
	c.root.Seed(seed)
}

// Root returns the root stream itself, not a copy.
func (c *Context) Root() *State {
	return c.root
}

// NewState returns a fresh stream whose seed is drawn from the root. This
// perturbs the root's future sequence by exactly one draw.
func (c *Context) NewState() *State {
	return New(c.root.SeedDraw())
}

// Copy clones a stream. When s is the root stream itself and force is false,
// the root reference is returned unchanged; callers that need an independent
// copy of the root must pass force.
func (c *Context) Copy(s *State, force bool) *State {
	if s == c.root && !force {
		return s
	}
	return s.Clone()
}
