package predict

import (
	"time"
)

const (
	coarseStep       = 60 * time.Second // initial horizon scan
	fineStep         = time.Second      // crossing refinement limit
	horizonElevation = 0.0
)

// Pass is a contiguous interval during which a satellite is above the
// horizon, from acquisition of signal through loss of signal.
type Pass struct {
	Satellite       string    `json:"satellite"`
	NoradID         int       `json:"norad_id"`
	AOS             time.Time `json:"aos"`
	LOS             time.Time `json:"los"`
	TCA             time.Time `json:"tca"`
	MaxElevationDeg float64   `json:"max_elevation_deg"`
	AOSAzimuthDeg   float64   `json:"aos_azimuth_deg"`
	LOSAzimuthDeg   float64   `json:"los_azimuth_deg"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// FindPasses scans [start, end] for horizon crossings with a one-minute
// coarse step, refines each crossing by binary search down to one second,
// and returns the passes whose peak elevation reaches minElevation.
func (p *Propagator) FindPasses(station GroundStation, satelliteName string, start, end time.Time, minElevation float64) ([]Pass, error) {
	var passes []Pass
	freqs := FrequencyPlan{} // Doppler is not needed for pass geometry

	var (
		prevVisible bool
		passStart   time.Time
		inPass      bool
		maxEl       float64
		maxElTime   time.Time
		aosAz       float64
	)

	for cursor := start; !cursor.After(end); cursor = cursor.Add(coarseStep) {
		sample, err := p.Observe(station, cursor, freqs)
		if err != nil {
			return nil, err
		}
		visible := sample.ElevationDeg >= horizonElevation

		switch {
		case visible && !prevVisible:
			aosTime, aosAzimuth, err := p.refineCrossing(station, cursor.Add(-coarseStep), cursor, true)
			if err != nil {
				return nil, err
			}
			passStart = aosTime
			aosAz = aosAzimuth
			inPass = true
			maxEl = sample.ElevationDeg
			maxElTime = cursor

		case visible && inPass:
			if sample.ElevationDeg > maxEl {
				maxEl = sample.ElevationDeg
				maxElTime = cursor
			}

		case !visible && prevVisible && inPass:
			losTime, losAzimuth, err := p.refineCrossing(station, cursor.Add(-coarseStep), cursor, false)
			if err != nil {
				return nil, err
			}
			if maxEl >= minElevation {
				passes = append(passes, Pass{
					Satellite:       satelliteName,
					NoradID:         p.NoradID(),
					AOS:             passStart,
					LOS:             losTime,
					TCA:             maxElTime,
					MaxElevationDeg: round2(maxEl),
					AOSAzimuthDeg:   round2(aosAz),
					LOSAzimuthDeg:   round2(losAzimuth),
					DurationSeconds: int64(losTime.Sub(passStart).Seconds()),
				})
			}
			inPass = false
			maxEl = 0
		}

		prevVisible = visible
	}

	// A pass still in progress at the end of the window is truncated to end.
	if inPass && maxEl >= minElevation {
		sample, err := p.Observe(station, end, freqs)
		if err != nil {
			return nil, err
		}
		passes = append(passes, Pass{
			Satellite:       satelliteName,
			NoradID:         p.NoradID(),
			AOS:             passStart,
			LOS:             end,
			TCA:             maxElTime,
			MaxElevationDeg: round2(maxEl),
			AOSAzimuthDeg:   round2(aosAz),
			LOSAzimuthDeg:   round2(sample.AzimuthDeg),
			DurationSeconds: int64(end.Sub(passStart).Seconds()),
		})
	}

	return passes, nil
}

// refineCrossing binary-searches (before, after] for the horizon crossing.
// rising selects an AOS (below -> above) crossing, otherwise LOS. Returns
// the crossing time and the azimuth there.
func (p *Propagator) refineCrossing(station GroundStation, before, after time.Time, rising bool) (time.Time, float64, error) {
	low, high := before, after

	for high.Sub(low) > fineStep {
		mid := low.Add(high.Sub(low) / 2)
		sample, err := p.Observe(station, mid, FrequencyPlan{})
		if err != nil {
			return time.Time{}, 0, err
		}
		above := sample.ElevationDeg >= horizonElevation
		if rising == above {
			high = mid
		} else {
			low = mid
		}
	}

	final, err := p.Observe(station, high, FrequencyPlan{})
	if err != nil {
		return time.Time{}, 0, err
	}
	return high, final.AzimuthDeg, nil
}
