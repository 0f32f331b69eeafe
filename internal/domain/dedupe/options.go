package dedupe

// Option applies a configuration option to Announced.
type Option func(*Announced)

// WithMaxSize caps the number of marked identities.
// If maxSize > 0: bounded mode, least recently observed mark evicted first.
// A cap below the number of runners live at once re-announces evicted ones.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(a *Announced) {
		a.maxSize = maxSize
	}
}
