package l2court

import "math"

// Zone is a coarse band of one half of the court, measured from the net.
type Zone string

const (
	ZoneNet       Zone = "net"       // first third of the half, nearest the net
	ZoneMid       Zone = "mid"       // middle third
	ZoneDefensive Zone = "defensive" // back third, at the glass
	ZoneOut       Zone = "out"       // outside the court rectangle
)

// Zones lists the in-court zones in a stable order.
var Zones = []Zone{ZoneDefensive, ZoneMid, ZoneNet}

// Side is one half of the court.
type Side string

const (
	SideNear Side = "near" // y < Length/2, the camera side
	SideFar  Side = "far"
)

// Opponent returns the other half.
func (s Side) Opponent() Side {
	if s == SideNear {
		return SideFar
	}
	return SideNear
}

// NetY returns the court y of the net.
func (m *Model) NetY() float64 { return m.dims.Length / 2 }

// Side returns the half pos lies in. The net line belongs to the far side.
func (m *Model) Side(pos CourtPosition) Side {
	if pos.Y < m.NetY() {
		return SideNear
	}
	return SideFar
}

// Zone buckets pos into a third of its half.
func (m *Model) Zone(pos CourtPosition) Zone {
	if !m.IsInBounds(pos, 0) {
		return ZoneOut
	}
	half := m.dims.Length / 2
	d := math.Abs(pos.Y - m.NetY())
	switch {
	case d < half/3:
		return ZoneNet
	case d < 2*half/3:
		return ZoneMid
	default:
		return ZoneDefensive
	}
}

// InWallRegion reports whether pos is within depth of the back or side
// walls of the given half. Positions beyond the walls count as inside.
func (m *Model) InWallRegion(pos CourtPosition, side Side, depth float64) bool {
	if !pos.IsFinite() || m.Side(pos) != side {
		return false
	}
	if pos.X <= depth || pos.X >= m.dims.Width-depth {
		return true
	}
	if side == SideNear {
		return pos.Y <= depth
	}
	return pos.Y >= m.dims.Length-depth
}
