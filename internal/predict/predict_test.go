package predict

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStationPositionECEF(t *testing.T) {
	// On the equator at the prime meridian the ECEF position sits on the
	// +X axis at one semi-major radius.
	sta := GroundStation{}
	pos := sta.PositionECEFKm()
	assert.InDelta(t, 6378.137, pos[0], 1e-9)
	assert.InDelta(t, 0.0, pos[1], 1e-9)
	assert.InDelta(t, 0.0, pos[2], 1e-9)

	// At the pole only Z is nonzero, and it is the polar radius.
	pole := GroundStation{LatitudeDeg: 90}
	polePos := pole.PositionECEFKm()
	assert.InDelta(t, 0.0, polePos[0], 1e-6)
	assert.InDelta(t, 6356.7523, polePos[2], 1e-3)
}

func TestStationAltitudeRaisesPosition(t *testing.T) {
	low := GroundStation{LatitudeDeg: 47.0, LongitudeDeg: 8.0}
	high := GroundStation{LatitudeDeg: 47.0, LongitudeDeg: 8.0, AltitudeM: 1000}

	lowPos := low.PositionECEFKm()
	highPos := high.PositionECEFKm()

	lowR := math.Sqrt(lowPos[0]*lowPos[0] + lowPos[1]*lowPos[1] + lowPos[2]*lowPos[2])
	highR := math.Sqrt(highPos[0]*highPos[0] + highPos[1]*highPos[1] + highPos[2]*highPos[2])
	// The geodetic normal is not exactly radial at mid latitudes, so allow
	// a small tolerance on the geocentric radius difference.
	assert.InDelta(t, 1.0, highR-lowR, 1e-4)
}

func TestStationVelocityPointsEast(t *testing.T) {
	sta := GroundStation{} // equator, prime meridian
	vel := sta.VelocityECEFKmS()
	// Earth rotation carries the station in +Y at roughly 0.465 km/s.
	assert.InDelta(t, 0.0, vel[0], 1e-12)
	assert.InDelta(t, EarthRotationRadS*6378.137, vel[1], 1e-9)
	assert.InDelta(t, 0.0, vel[2], 1e-12)
}

func TestParseCoordinates(t *testing.T) {
	sta, err := ParseCoordinates("47.37, 8.54", 450)
	require.NoError(t, err)
	assert.Equal(t, 47.37, sta.LatitudeDeg)
	assert.Equal(t, 8.54, sta.LongitudeDeg)
	assert.Equal(t, 450.0, sta.AltitudeM)

	_, err = ParseCoordinates("47.37", 0)
	assert.Error(t, err)

	_, err = ParseCoordinates("north, west", 0)
	assert.Error(t, err)
}

func TestECEFToENU(t *testing.T) {
	// Station at the equator/prime meridian: ECEF +Y is local east,
	// +Z is local north, +X is local up.
	east, north, up := ecefToENU([3]float64{0, 1, 0}, 0, 0)
	assert.InDelta(t, 1.0, east, 1e-12)
	assert.InDelta(t, 0.0, north, 1e-12)
	assert.InDelta(t, 0.0, up, 1e-12)

	east, north, up = ecefToENU([3]float64{0, 0, 1}, 0, 0)
	assert.InDelta(t, 0.0, east, 1e-12)
	assert.InDelta(t, 1.0, north, 1e-12)
	assert.InDelta(t, 0.0, up, 1e-12)

	east, north, up = ecefToENU([3]float64{1, 0, 0}, 0, 0)
	assert.InDelta(t, 0.0, east, 1e-12)
	assert.InDelta(t, 0.0, north, 1e-12)
	assert.InDelta(t, 1.0, up, 1e-12)
}

func TestTemeToECEFRoundsThroughGMST(t *testing.T) {
	// At gmst = 0 the rotation is the identity.
	pos := temeToECEFPosition([3]float64{7000, 100, -200}, 0)
	assert.InDelta(t, 7000.0, pos[0], 1e-12)
	assert.InDelta(t, 100.0, pos[1], 1e-12)
	assert.InDelta(t, -200.0, pos[2], 1e-12)

	// A rotation by gmst preserves vector length.
	rot := temeToECEFPosition([3]float64{7000, 100, -200}, 1.234)
	lenBefore := math.Sqrt(7000*7000 + 100*100 + 200*200)
	lenAfter := math.Sqrt(rot[0]*rot[0] + rot[1]*rot[1] + rot[2]*rot[2])
	assert.InDelta(t, lenBefore, lenAfter, 1e-9)
}

func TestGMSTRange(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC),
		time.Date(1987, 6, 19, 0, 0, 0, 0, time.UTC),
	}
	for _, tm := range times {
		g := gmstRadians(tm)
		assert.GreaterOrEqual(t, g, 0.0)
		assert.Less(t, g, 2*math.Pi)
	}
	// Vallado example 3-5: 1992-08-20 12:14 UT1 has GMST 152.578788 deg.
	g := gmstRadians(time.Date(1992, 8, 20, 12, 14, 0, 0, time.UTC))
	assert.InDelta(t, 152.578788, g*radToDeg, 0.01)
}

func TestDoppler(t *testing.T) {
	// Approaching satellite: downlink shifts up, uplink compensates down.
	down := ApplyDownlinkDoppler(437.8e6, -7.0)
	assert.Greater(t, down, 437.8e6)

	up := ApplyUplinkDoppler(437.8e6, -7.0)
	assert.Less(t, up, 437.8e6)

	// Zero range rate leaves both untouched.
	assert.Equal(t, 437.8e6, ApplyDownlinkDoppler(437.8e6, 0))
	assert.Equal(t, 437.8e6, ApplyUplinkDoppler(437.8e6, 0))
}

func TestParseFrequencyHz(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"437.8 MHz", 437.8e6},
		{"145800 khz", 145800e3},
		{"2.4 GHz", 2.4e9},
		{"1000 Hz", 1000},
		{"1000", 1000},
		{"437.8 mhz", 437.8e6},
	}
	for _, c := range cases {
		got, err := ParseFrequencyHz(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseFrequencyHz("")
	assert.Error(t, err)
	_, err = ParseFrequencyHz("many hz")
	assert.Error(t, err)
}

func TestBuildFrequencyPlan(t *testing.T) {
	plan := BuildFrequencyPlan("145.8 MHz", "437.8 MHz")
	require.NotNil(t, plan.UplinkHz)
	require.NotNil(t, plan.DownlinkHz)
	assert.Equal(t, 145.8e6, *plan.UplinkHz)
	assert.Equal(t, 437.8e6, *plan.DownlinkHz)

	empty := BuildFrequencyPlan("", "")
	assert.Nil(t, empty.UplinkHz)
	assert.Nil(t, empty.DownlinkHz)
}

func TestSplitTLEGroups(t *testing.T) {
	const bulk = `ISS (ZARYA)
1 25544U 98067A   26012.17690827  .00009276  00000-0  17471-3 0  9998
2 25544  51.6333 351.7881 0007723   8.9804 351.1321 15.49250518547578

1 43013U 17073A   26011.50000000  .00000100  00000-0  00000-0 0  9991
2 43013  98.7200 300.0000 0001000  90.0000 270.0000 14.19000000123456
garbage line that fits nothing
`
	groups := SplitTLEGroups(bulk)
	require.Len(t, groups, 2)
	assert.Equal(t, "ISS (ZARYA)", groups[0].Name)
	assert.Empty(t, groups[1].Name)
	assert.Contains(t, groups[0].Text(), "ISS (ZARYA)\n1 25544U")
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2345))
	assert.Equal(t, -1.23, round2(-1.2345))
	assert.Equal(t, 360.0, round2(359.999))
}
