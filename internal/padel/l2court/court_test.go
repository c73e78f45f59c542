package l2court

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// overheadCorners is a camera looking straight down at 50 px/m with the
// near baseline at the bottom of the image.
var overheadCorners = [4]PixelPoint{{100, 1100}, {600, 1100}, {600, 100}, {100, 100}}

// broadcastCorners is a typical elevated end-on view with perspective.
var broadcastCorners = [4]PixelPoint{{412, 1002}, {1508, 1002}, {1238, 214}, {682, 214}}

func testConfig() ModelConfig {
	return ModelConfig{MaxConditionNumber: 1e6}
}

func mustModel(t *testing.T, corners [4]PixelPoint) *Model {
	t.Helper()
	m, err := New(corners, PadelDimensions, testConfig())
	require.NoError(t, err)
	return m
}

func TestCornersMapToCourtCorners(t *testing.T) {
	t.Parallel()

	for name, corners := range map[string][4]PixelPoint{"overhead": overheadCorners, "broadcast": broadcastCorners} {
		corners := corners
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := mustModel(t, corners)
			want := []CourtPosition{{0, 0}, {10, 0}, {10, 20}, {0, 20}}
			for i, c := range corners {
				got := m.Project(c)
				assert.InDelta(t, want[i].X, got.X, 1e-6, "corner %d x", i)
				assert.InDelta(t, want[i].Y, got.Y, 1e-6, "corner %d y", i)
			}
		})
	}
}

func TestOverheadScale(t *testing.T) {
	m := mustModel(t, overheadCorners)
	got := m.Project(PixelPoint{350, 600})
	assert.InDelta(t, 5.0, got.X, 1e-9)
	assert.InDelta(t, 10.0, got.Y, 1e-9)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for name, corners := range map[string][4]PixelPoint{"overhead": overheadCorners, "broadcast": broadcastCorners} {
		corners := corners
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := mustModel(t, corners)
			for x := -2.0; x <= 12; x += 0.7 {
				for y := -2.0; y <= 22; y += 1.3 {
					p := CourtPosition{x, y}
					back := m.Project(m.Unproject(p))
					assert.InDelta(t, p.X, back.X, 1e-6)
					assert.InDelta(t, p.Y, back.Y, 1e-6)
				}
			}
			for _, px := range []PixelPoint{{500, 900}, {960, 540}, {700, 300}} {
				back := m.Unproject(m.Project(px))
				assert.InDelta(t, px.X, back.X, 1e-6)
				assert.InDelta(t, px.Y, back.Y, 1e-6)
			}
		})
	}
}

func TestCalibrationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		corners [4]PixelPoint
		dims    Dimensions
		cfg     ModelConfig
	}{
		{
			name:    "collinear",
			corners: [4]PixelPoint{{0, 0}, {100, 0}, {200, 0}, {50, 80}},
			dims:    PadelDimensions, cfg: testConfig(),
		},
		{
			name:    "nearly collinear",
			corners: [4]PixelPoint{{0, 0}, {1000, 0}, {2000, 0.01}, {0, 500}},
			dims:    PadelDimensions, cfg: testConfig(),
		},
		{
			name:    "coincident",
			corners: [4]PixelPoint{{5, 5}, {5, 5}, {5, 5}, {5, 5}},
			dims:    PadelDimensions, cfg: testConfig(),
		},
		{
			name:    "crossed order",
			corners: [4]PixelPoint{{100, 1100}, {600, 100}, {600, 1100}, {100, 100}},
			dims:    PadelDimensions, cfg: testConfig(),
		},
		{
			name:    "nan corner",
			corners: [4]PixelPoint{{math.NaN(), 0}, {100, 0}, {100, 100}, {0, 100}},
			dims:    PadelDimensions, cfg: testConfig(),
		},
		{
			name:    "zero width",
			corners: overheadCorners,
			dims:    Dimensions{Width: 0, Length: 20}, cfg: testConfig(),
		},
		{
			name:    "condition number above threshold",
			corners: broadcastCorners,
			dims:    PadelDimensions, cfg: ModelConfig{MaxConditionNumber: 1.0001},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := New(tt.corners, tt.dims, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, m)
			var calErr *CalibrationError
			assert.True(t, errors.As(err, &calErr), "want CalibrationError, got %T", err)
		})
	}
}

func TestIsInBoundsMargin(t *testing.T) {
	m := mustModel(t, overheadCorners)

	assert.True(t, m.IsInBounds(CourtPosition{5, 10}, 0))
	assert.True(t, m.IsInBounds(CourtPosition{10, 20}, 0), "boundary is in")
	assert.False(t, m.IsInBounds(CourtPosition{10.01, 20}, 0))

	assert.True(t, m.IsInBounds(CourtPosition{11, 10}, 1), "exactly at margin is in")
	assert.True(t, m.IsInBounds(CourtPosition{5, -1}, 1))
	assert.False(t, m.IsInBounds(CourtPosition{12, 10}, 1), "one unit beyond margin is out")
	assert.False(t, m.IsInBounds(CourtPosition{5, 22}, 1))
	assert.False(t, m.IsInBounds(CourtPosition{math.NaN(), 5}, 1))
}

func TestZones(t *testing.T) {
	t.Parallel()
	m := mustModel(t, overheadCorners)

	tests := []struct {
		pos  CourtPosition
		zone Zone
		side Side
	}{
		{CourtPosition{5, 1}, ZoneDefensive, SideNear},
		{CourtPosition{5, 5}, ZoneMid, SideNear},
		{CourtPosition{5, 9}, ZoneNet, SideNear},
		{CourtPosition{5, 10}, ZoneNet, SideFar},
		{CourtPosition{5, 15}, ZoneMid, SideFar},
		{CourtPosition{5, 19}, ZoneDefensive, SideFar},
		{CourtPosition{-1, 5}, ZoneOut, SideNear},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.zone, m.Zone(tt.pos), "%v", tt.pos)
		assert.Equal(t, tt.side, m.Side(tt.pos), "%v", tt.pos)
	}
	assert.Equal(t, SideFar, SideNear.Opponent())
	assert.Equal(t, SideNear, SideFar.Opponent())
}

func TestInWallRegion(t *testing.T) {
	m := mustModel(t, overheadCorners)

	assert.True(t, m.InWallRegion(CourtPosition{0.2, 5}, SideNear, 0.5), "near side wall")
	assert.True(t, m.InWallRegion(CourtPosition{5, 0.3}, SideNear, 0.5), "near back wall")
	assert.True(t, m.InWallRegion(CourtPosition{5, -0.3}, SideNear, 0.5), "beyond the glass")
	assert.False(t, m.InWallRegion(CourtPosition{5, 5}, SideNear, 0.5))
	assert.True(t, m.InWallRegion(CourtPosition{5, 19.8}, SideFar, 0.5))
	assert.True(t, m.InWallRegion(CourtPosition{9.7, 15}, SideFar, 0.5))
	assert.False(t, m.InWallRegion(CourtPosition{5, 19.8}, SideNear, 0.5), "wrong half")
}

func TestAccessors(t *testing.T) {
	m := mustModel(t, overheadCorners)
	assert.Equal(t, overheadCorners, m.Corners())
	assert.Equal(t, PadelDimensions, m.Dimensions())
	h := m.Homography()
	assert.InDelta(t, 1.0, h[8], 1e-12)
	assert.Equal(t, 10.0, m.NetY())
	assert.Equal(t, 1e6, DefaultModelConfig().MaxConditionNumber)
}
