package supervisor

import (
	"fmt"
	"sync"
)

// Observer is notified of every fault the supervisor captures.
type Observer func(fault error)

// Supervisor is a scoped boundary around a host update/render cycle.
// It captures any fault raised inside the cycle, records it in an
// owned last-fault slot without touching unrelated state, and runs a
// fallback so one bad cycle does not take the session down.
type Supervisor struct {
	lock      sync.Mutex
	lastFault error
	fallback  func()
	observer  Observer
}

type NewSupervisorOptions struct {
	Fallback func()
	Observer Observer
}

func NewSupervisor(opts NewSupervisorOptions) *Supervisor {
	return &Supervisor{
		fallback: opts.Fallback,
		observer: opts.Observer,
	}
}

// Run executes one cycle. A returned error or a panic inside fn is
// recorded as the last fault; panics are additionally routed through
// the fallback path.
func (s *Supervisor) Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in supervised cycle: %v", r)
			s.record(err)
			if s.fallback != nil {
				s.fallback()
			}
		}
	}()

	if err := fn(); err != nil {
		s.record(err)
		return err
	}
	return nil
}

func (s *Supervisor) record(fault error) {
	s.lock.Lock()
	s.lastFault = fault
	observer := s.observer
	s.lock.Unlock()

	if observer != nil {
		observer(fault)
	}
}

// LastFault returns the most recent captured fault, nil if none.
func (s *Supervisor) LastFault() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastFault
}

// ClearFault resets the last-fault slot, typically after the UI has
// acknowledged it.
func (s *Supervisor) ClearFault() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastFault = nil
}
