package alerting

import (
	"github.com/smukkama/airfield-alerts/internal/protocol"
	"github.com/smukkama/airfield-alerts/pkg/config"
)

// Bands are fixed cutoffs independent of any user threshold. Wind cutoffs are
// in knots and ascend; visibility cutoffs are in km and descend.
type Bands struct {
	WindYellow       float64
	WindOrange       float64
	WindRed          float64
	VisibilityYellow float64
	VisibilityOrange float64
	VisibilityRed    float64
}

// DefaultBands returns 20/30/40 kt wind and 5/3/1 km visibility.
func DefaultBands() Bands {
	return Bands{
		WindYellow:       20,
		WindOrange:       30,
		WindRed:          40,
		VisibilityYellow: 5,
		VisibilityOrange: 3,
		VisibilityRed:    1,
	}
}

// BandsFromConfig converts the configured cutoffs.
func BandsFromConfig(c config.BandConfig) Bands {
	return Bands{
		WindYellow:       c.WindYellow,
		WindOrange:       c.WindOrange,
		WindRed:          c.WindRed,
		VisibilityYellow: c.VisibilityYellow,
		VisibilityOrange: c.VisibilityOrange,
		VisibilityRed:    c.VisibilityRed,
	}
}

// WithOverrides applies per-request cutoffs. Zero values keep the receiver's.
func (b Bands) WithOverrides(o *protocol.Bands) Bands {
	if o == nil {
		return b
	}
	pick := func(override, current float64) float64 {
		if override > 0 {
			return override
		}
		return current
	}
	return Bands{
		WindYellow:       pick(o.Wind.Yellow, b.WindYellow),
		WindOrange:       pick(o.Wind.Orange, b.WindOrange),
		WindRed:          pick(o.Wind.Red, b.WindRed),
		VisibilityYellow: pick(o.Visibility.Yellow, b.VisibilityYellow),
		VisibilityOrange: pick(o.Visibility.Orange, b.VisibilityOrange),
		VisibilityRed:    pick(o.Visibility.Red, b.VisibilityRed),
	}
}
