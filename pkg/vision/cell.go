package vision

import "sync"

// EstimateCell is the shared slot the estimator writes and the pipeline
// reads under lock. It stays empty until the first detection; a read
// between detections returns the most recent one.
type EstimateCell struct {
	mu sync.Mutex
	x  int
	y  int
	ok bool
}

// Set publishes a new estimate
func (c *EstimateCell) Set(x, y int) {
	c.mu.Lock()
	c.x, c.y, c.ok = x, y, true
	c.mu.Unlock()
}

// Get returns the latest estimate; ok is false before the first detection
func (c *EstimateCell) Get() (x, y int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y, c.ok
}
