package diskspace

import "time"

// Tier is an ordered free-space classification. Order matters: gating and
// poll frequency both key off how far down the scale the disk has slid.
type Tier string

const (
	TierOK        Tier = "ok"
	TierWarning   Tier = "warning"
	TierCritical  Tier = "critical"
	TierEmergency Tier = "emergency"
)

// Thresholds hold the free-byte boundaries between tiers. Validity
// (emergency < critical < warning) is enforced at config load.
type Thresholds struct {
	Warning   uint64
	Critical  uint64
	Emergency uint64
}

// ThresholdsFromMB converts configured megabyte values to byte thresholds.
func ThresholdsFromMB(warningMB, criticalMB, emergencyMB int) Thresholds {
	const mb = 1024 * 1024
	return Thresholds{
		Warning:   uint64(warningMB) * mb,
		Critical:  uint64(criticalMB) * mb,
		Emergency: uint64(emergencyMB) * mb,
	}
}

// tierFor classifies free bytes against nested thresholds, checked from the
// most severe boundary outward.
func tierFor(free uint64, th Thresholds) Tier {
	switch {
	case free < th.Emergency:
		return TierEmergency
	case free < th.Critical:
		return TierCritical
	case free < th.Warning:
		return TierWarning
	default:
		return TierOK
	}
}

// intervalFor picks the poll cadence for the given free space: rare sampling
// when space is abundant, rapid when scarce.
func intervalFor(free uint64, th Thresholds) time.Duration {
	switch {
	case free > 2*th.Warning:
		return 60 * time.Second
	case free > th.Warning:
		return 15 * time.Second
	case free > th.Critical:
		return 5 * time.Second
	default:
		return 2 * time.Second
	}
}

// Allows reports whether new uploads may start at this tier.
func (t Tier) Allows() bool {
	return t == TierOK || t == TierWarning
}
