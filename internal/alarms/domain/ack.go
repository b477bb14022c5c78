package alarms

// AckFlag gates one condition. The zero value is ready to fire.
type AckFlag struct {
	latched bool
}

// Ready reports whether the condition may notify.
func (f *AckFlag) Ready() bool { return !f.latched }

// Latch blocks further notifications until Reset.
func (f *AckFlag) Latch() { f.latched = true }

// Reset re-arms the condition.
func (f *AckFlag) Reset() { f.latched = false }

// TryLatch latches a ready flag and reports whether it did.
func (f *AckFlag) TryLatch() bool {
	if f.latched {
		return false
	}
	f.latched = true
	return true
}
