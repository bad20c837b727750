package schedule

import "time"

// SetNowFunc overrides the service clock for tests; the returned func
// restores it.
func SetNowFunc(f func() time.Time) func() {
	old := nowFunc
	nowFunc = f
	return func() { nowFunc = old }
}
