// Package advertise publishes the server on the local network as a
// "_daap._tcp" mDNS/Bonjour service, the zero-configuration discovery
// mechanism spec.md §4.9 requires, and reacts to name collisions by
// retrying under a disambiguated instance name.
package advertise

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_daap._tcp"

// Advertiser owns the lifecycle of one mDNS registration. Register and
// Unregister are serialized under a dedicated mutex so a collision retry
// racing against a Stop cannot register a zombie service.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server

	// Collisions receives the name a collision retry ended up publishing
	// under. It is buffered (capacity 4), so RegisterWithCollisionRetry
	// blocks on it only once four names are pending unread.
	Collisions chan string
}

func New() *Advertiser {
	return &Advertiser{Collisions: make(chan string, 4)}
}

// Register publishes instanceName under _daap._tcp on port, with the TXT
// record keys DAAP clients expect: Password (1/0), a display name, and a
// protocol-version marker. machineID is optional and omitted from the TXT
// record when empty.
func (a *Advertiser) Register(instanceName string, port int, passwordRequired bool, machineID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	txt := []string{
		fmt.Sprintf("Password=%d", boolToInt(passwordRequired)),
		"txtvers=1",
		"Machine Name=" + instanceName,
	}
	if machineID != "" {
		txt = append(txt, "Machine ID="+machineID)
	}

	name := instanceName
	srv, err := zeroconf.Register(name, serviceType, "local.", port, txt, nil)
	if err != nil {
		return err
	}

	if a.server != nil {
		a.server.Shutdown()
	}
	a.server = srv
	return nil
}

// RegisterWithCollisionRetry attempts Register under baseName, and on
// failure (the registration library surfaces a conflict as an error from
// Register, not a distinct type) retries a bounded number of times with a
// numeric suffix, reporting the name that finally succeeded on Collisions.
func (a *Advertiser) RegisterWithCollisionRetry(baseName string, port int, passwordRequired bool, machineID string, maxAttempts int) error {
	name := baseName
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := a.Register(name, port, passwordRequired, machineID)
		if err == nil {
			if name != baseName {
				a.Collisions <- name
			}
			return nil
		}
		lastErr = err
		name = fmt.Sprintf("%s (%d)", baseName, attempt+1)
	}
	return lastErr
}

// Unregister tears down any active registration. Disposal errors are
// swallowed, per spec.md §6's "service-advertisement disposal errors are
// swallowed".
func (a *Advertiser) Unregister() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
