package scan

import "sync/atomic"

// DoorSelector holds the operator's current door choice. The value is opaque
// and read once per scan.
type DoorSelector struct {
	v atomic.Value
}

// NewDoorSelector returns a selector preset to door.
func NewDoorSelector(door string) *DoorSelector {
	d := &DoorSelector{}
	d.v.Store(door)
	return d
}

// Current returns the selected door.
func (d *DoorSelector) Current() string {
	s, _ := d.v.Load().(string)
	return s
}

// Set replaces the selected door.
func (d *DoorSelector) Set(door string) { d.v.Store(door) }
