package volume

import (
	"fmt"
	"strings"
)

// Axis names a spatial image axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis accepts "x", "y" or "z" in either case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("volume: invalid axis %q (must be x, y, or z)", s)
}

// Len returns the extent of a along axis.
func (a Attributes) Len(axis Axis) int {
	switch axis {
	case AxisX:
		return a.X
	case AxisY:
		return a.Y
	case AxisZ:
		return a.Z
	}
	return 0
}
