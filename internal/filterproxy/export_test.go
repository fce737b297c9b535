package filterproxy

// Initialize exposes the init step so tests can drive it without a delegate.
func (p *Proxy) Initialize(delegate Filter) error {
	return p.initialize(delegate)
}
