package camera

import (
	"fmt"
	"sort"
	"sync"
)

// OpenFunc opens a driver session configured with s.
type OpenFunc func(s Settings) (Driver, error)

var (
	driversMu sync.Mutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes a driver available by name. It panics if the name is
// already taken.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("camera: Register called twice for driver " + name)
	}
	drivers[name] = open
}

// Open opens the named driver.
func Open(name string, s Settings) (Driver, error) {
	driversMu.Lock()
	open, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown camera driver %q (have %v)", name, Drivers())
	}
	return open(s)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.Lock()
	defer driversMu.Unlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
