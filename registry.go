package polystore

import (
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Driver describes how to construct one storage variant from its options.
// Required lists the option keys the variant cannot work without; the
// client checks them at construction time so misconfiguration fails fast
// rather than at first use.
type Driver struct {
	New      func(options map[string]string) (Storage, error)
	Required []string
}

// Register registers a storage driver under the given type name.
// It is typically called from init() in backend packages.
//
// Register panics if the constructor is nil or the name is already taken.
//
// Example:
//
//	func init() {
//	    polystore.Register("s3", polystore.Driver{New: NewFromOptions, Required: []string{"bucket_name"}})
//	}
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if driver.New == nil {
		panic("polystore: Register driver constructor is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("polystore: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open constructs a storage of the given type with the given options.
// Returns ErrUnknownType if no driver with the given name is registered.
func Open(name string, options map[string]string) (Storage, error) {
	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return driver.New(options)
}

// Drivers returns a sorted list of registered storage type names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered returns true if a driver with the given name is registered.
func IsRegistered(name string) bool {
	driversMu.RLock()
	defer driversMu.RUnlock()
	_, ok := drivers[name]
	return ok
}

// Unregister removes a registered driver.
// This is primarily useful for testing.
// Returns true if the driver was registered, false otherwise.
func Unregister(name string) bool {
	driversMu.Lock()
	defer driversMu.Unlock()

	if _, ok := drivers[name]; ok {
		delete(drivers, name)
		return true
	}
	return false
}

// lookupDriver returns the driver for a type name, for construction-time
// validation.
func lookupDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	driver, ok := drivers[name]
	return driver, ok
}
