package discovery

import "errors"

// Custom errors for discovery operations
var (
	// ErrDiscovery means the listing page could not be read. It is fatal
	// for the run.
	ErrDiscovery = errors.New("discovery failed")
	// ErrNavigation means an item page could not be loaded.
	ErrNavigation = errors.New("navigation failed")
	// ErrNoBody means an item page has no article body container.
	ErrNoBody = errors.New("article body not found")
)
