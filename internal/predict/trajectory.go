package predict

import (
	"fmt"
	"math"
	"time"

	"github.com/akhenakh/sgp4"
)

const degToRad = math.Pi / 180.0
const radToDeg = 180.0 / math.Pi

// Sample is one propagated geometry point as seen from the ground station.
// Azimuth, elevation, range, and range rate are rounded to two decimals;
// Doppler frequencies keep full precision.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"           yaml:"timestamp"`
	AzimuthDeg        float64   `json:"azimuth_deg"         yaml:"azimuth_deg"`
	ElevationDeg      float64   `json:"elevation_deg"       yaml:"elevation_deg"`
	RangeKm           float64   `json:"range_km"            yaml:"range_km"`
	RangeRateKmS      float64   `json:"range_rate_km_s"     yaml:"range_rate_km_s"`
	DopplerUplinkHz   *float64  `json:"doppler_uplink_hz,omitempty"   yaml:"doppler_uplink_hz,omitempty"`
	DopplerDownlinkHz *float64  `json:"doppler_downlink_hz,omitempty" yaml:"doppler_downlink_hz,omitempty"`
}

// Propagator wraps an SGP4-initialized element set. It is the only type in
// the package that touches the sgp4 library directly.
type Propagator struct {
	tle  *sgp4.TLE
	sgp4 *sgp4.SGP4
}

// NewPropagator initializes SGP4 from a TLE group (two element lines,
// optionally preceded by a name line).
func NewPropagator(group string) (*Propagator, error) {
	tle, err := sgp4.ParseTLE(group)
	if err != nil {
		return nil, fmt.Errorf("parse tle: %w", err)
	}
	model, err := sgp4.NewSGP4(tle)
	if err != nil {
		return nil, fmt.Errorf("initialize sgp4: %w", err)
	}
	return &Propagator{tle: tle, sgp4: model}, nil
}

// NoradID returns the satellite catalog number from the element set.
func (p *Propagator) NoradID() int { return p.tle.SatelliteNumber }

// stateTEME returns the satellite position (km) and velocity (km/s) in the
// TEME frame at time t.
func (p *Propagator) stateTEME(t time.Time) (pos, vel [3]float64, err error) {
	eci, err := p.sgp4.FindPosition(t.UTC())
	if err != nil {
		return pos, vel, fmt.Errorf("propagation at %s: %w", t.UTC().Format(time.RFC3339), err)
	}
	pos = [3]float64{eci.Position.X, eci.Position.Y, eci.Position.Z}
	vel = [3]float64{eci.Velocity.X, eci.Velocity.Y, eci.Velocity.Z}
	return pos, vel, nil
}

// Observe computes one Sample for the station at the given instant.
func (p *Propagator) Observe(station GroundStation, t time.Time, freqs FrequencyPlan) (Sample, error) {
	satTEME, velTEME, err := p.stateTEME(t)
	if err != nil {
		return Sample{}, err
	}

	gmst := gmstRadians(t)
	satECEF := temeToECEFPosition(satTEME, gmst)
	satVelECEF := temeToECEFVelocity(satTEME, velTEME, gmst)

	staECEF := station.PositionECEFKm()
	staVel := station.VelocityECEFKmS()

	dr := [3]float64{
		satECEF[0] - staECEF[0],
		satECEF[1] - staECEF[1],
		satECEF[2] - staECEF[2],
	}
	rangeKm := math.Sqrt(dr[0]*dr[0] + dr[1]*dr[1] + dr[2]*dr[2])

	east, north, up := ecefToENU(dr, station.LatRad(), station.LonRad())
	azimuth := math.Mod(math.Atan2(east, north)*radToDeg, 360.0)
	if azimuth < 0 {
		azimuth += 360.0
	}
	elevation := 0.0
	if rangeKm > 0 {
		elevation = math.Asin(up/rangeKm) * radToDeg
	}

	var losUnit [3]float64
	if rangeKm > 0 {
		losUnit = [3]float64{dr[0] / rangeKm, dr[1] / rangeKm, dr[2] / rangeKm}
	}
	relVel := [3]float64{
		satVelECEF[0] - staVel[0],
		satVelECEF[1] - staVel[1],
		satVelECEF[2] - staVel[2],
	}
	rangeRate := relVel[0]*losUnit[0] + relVel[1]*losUnit[1] + relVel[2]*losUnit[2]

	sample := Sample{
		Timestamp:    t,
		AzimuthDeg:   round2(azimuth),
		ElevationDeg: round2(elevation),
		RangeKm:      round2(rangeKm),
		RangeRateKmS: round2(rangeRate),
	}
	if freqs.UplinkHz != nil {
		hz := ApplyUplinkDoppler(*freqs.UplinkHz, rangeRate)
		sample.DopplerUplinkHz = &hz
	}
	if freqs.DownlinkHz != nil {
		hz := ApplyDownlinkDoppler(*freqs.DownlinkHz, rangeRate)
		sample.DopplerDownlinkHz = &hz
	}
	return sample, nil
}

// BuildTrajectory samples the geometry from start through end inclusive at
// the given step. The returned slice is ordered by timestamp.
func (p *Propagator) BuildTrajectory(station GroundStation, start, end time.Time, freqs FrequencyPlan, step time.Duration) ([]Sample, error) {
	var points []Sample
	for cursor := start; !cursor.After(end); cursor = cursor.Add(step) {
		sample, err := p.Observe(station, cursor, freqs)
		if err != nil {
			return nil, err
		}
		points = append(points, sample)
	}
	return points, nil
}

// ApplyDownlinkDoppler shifts a received frequency by the range rate:
// an approaching satellite (negative range rate) raises the frequency.
func ApplyDownlinkDoppler(freqHz, rangeRateKmS float64) float64 {
	return freqHz * (1.0 - rangeRateKmS/SpeedOfLightKmS)
}

// ApplyUplinkDoppler pre-compensates a transmitted frequency so the
// satellite receives it on target.
func ApplyUplinkDoppler(freqHz, rangeRateKmS float64) float64 {
	return freqHz * (1.0 + rangeRateKmS/SpeedOfLightKmS)
}

// gmstRadians returns Greenwich Mean Sidereal Time at t, in radians,
// from the IAU polynomial in Julian centuries since the J2000 epoch.
func gmstRadians(t time.Time) float64 {
	jd := julianDate(t)
	tc := (jd - 2451545.0) / 36525.0
	seconds := 67310.54841 +
		(876600.0*3600.0+8640184.812866)*tc +
		0.093104*tc*tc -
		6.2e-6*tc*tc*tc
	seconds = math.Mod(seconds, 86400.0)
	if seconds < 0 {
		seconds += 86400.0
	}
	return seconds * (math.Pi / 43200.0)
}

// julianDate converts t to a Julian date. The Unix epoch is JD 2440587.5.
func julianDate(t time.Time) float64 {
	unix := float64(t.UnixNano()) / 1e9
	return unix/86400.0 + 2440587.5
}

// temeToECEFPosition rotates a TEME position into ECEF by the Greenwich
// sidereal angle.
func temeToECEFPosition(pos [3]float64, gmst float64) [3]float64 {
	sinG, cosG := math.Sincos(gmst)
	return [3]float64{
		pos[0]*cosG + pos[1]*sinG,
		-pos[0]*sinG + pos[1]*cosG,
		pos[2],
	}
}

// temeToECEFVelocity rotates a TEME velocity into ECEF and removes the
// velocity contributed by Earth rotation.
func temeToECEFVelocity(pos, vel [3]float64, gmst float64) [3]float64 {
	sinG, cosG := math.Sincos(gmst)
	ecefPos := temeToECEFPosition(pos, gmst)
	rotated := [3]float64{
		vel[0]*cosG + vel[1]*sinG,
		-vel[0]*sinG + vel[1]*cosG,
		vel[2],
	}
	return [3]float64{
		rotated[0] + EarthRotationRadS*ecefPos[1],
		rotated[1] - EarthRotationRadS*ecefPos[0],
		rotated[2],
	}
}

// ecefToENU projects an ECEF displacement vector onto the station's local
// East-North-Up axes.
func ecefToENU(dr [3]float64, latRad, lonRad float64) (east, north, up float64) {
	sinLat, cosLat := math.Sincos(latRad)
	sinLon, cosLon := math.Sincos(lonRad)

	east = -sinLon*dr[0] + cosLon*dr[1]
	north = -sinLat*cosLon*dr[0] - sinLat*sinLon*dr[1] + cosLat*dr[2]
	up = cosLat*cosLon*dr[0] + cosLat*sinLon*dr[1] + sinLat*dr[2]
	return east, north, up
}

func round2(v float64) float64 {
	return math.Round(v*100.0) / 100.0
}
