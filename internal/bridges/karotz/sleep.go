package karotz

import "context"

// SleepSwitch puts the rabbit to sleep (on) or wakes it (off).
type SleepSwitch struct {
	client *Client
	coord  *Coordinator
}

// Available reports whether the last status poll succeeded.
func (s *SleepSwitch) Available() bool {
	return s.coord.LastUpdateSuccess()
}

// IsOn reports whether the rabbit is asleep.
func (s *SleepSwitch) IsOn() bool {
	return s.coord.Data().IsSleeping()
}

// TurnOn puts the rabbit to sleep.
func (s *SleepSwitch) TurnOn(ctx context.Context) bool {
	if !s.client.Sleep(ctx) {
		return false
	}
	s.apply("1")
	return true
}

// TurnOff wakes the rabbit silently.
func (s *SleepSwitch) TurnOff(ctx context.Context) bool {
	if !s.client.Wakeup(ctx, true) {
		return false
	}
	s.apply("0")
	return true
}

func (s *SleepSwitch) apply(sleep string) {
	s.coord.Patch(func(st Status) {
		st[KeySleep] = sleep
	})
	s.coord.RequestRefresh()
}

// SleepSensor is the read-only sleeping indicator.
type SleepSensor struct {
	coord *Coordinator
}

// Available reports whether the last status poll succeeded.
func (s *SleepSensor) Available() bool {
	return s.coord.LastUpdateSuccess()
}

// IsSleeping reports whether the rabbit is asleep.
func (s *SleepSensor) IsSleeping() bool {
	return s.coord.Data().IsSleeping()
}
