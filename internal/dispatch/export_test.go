package dispatch

// WithoutDrainSignal disables completion wakeups so WaitUntilDrained can only
// observe a drain through its poll interval.
func WithoutDrainSignal[T any]() Option[T] {
	return func(d *Dispatcher[T]) { d.drained = nil }
}
