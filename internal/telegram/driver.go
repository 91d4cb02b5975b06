package telegram

import (
	"fmt"
	"sync"
)

var (
	dialersMu sync.RWMutex
	dialers   = make(map[string]Dialer)
)

// RegisterDialer makes a session-layer implementation available under the
// given name, following the database/sql driver convention: adapters call it
// from an init function and programs select one by configuration.
func RegisterDialer(name string, d Dialer) {
	dialersMu.Lock()
	defer dialersMu.Unlock()

	if d == nil {
		panic("telegram: RegisterDialer dialer is nil")
	}

	if _, dup := dialers[name]; dup {
		panic("telegram: RegisterDialer called twice for dialer " + name)
	}

	dialers[name] = d
}

// OpenDialer returns the dialer registered under name.
func OpenDialer(name string) (Dialer, error) {
	dialersMu.RLock()
	d, ok := dialers[name]
	dialersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("telegram: unknown session driver %q (forgotten import?)", name)
	}

	return d, nil
}
