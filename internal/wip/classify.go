package wip

import (
	"time"

	"github.com/bdi-platform/wip-backend/internal/models"
)

// Classify derives the unit's current lifecycle stage from its raw fields.
// Rules are evaluated in fixed priority order and the first match wins: a
// unit accumulates timestamps as it moves downstream, so classification must
// prefer the most advanced stage reached, not the most recently touched
// field. Timestamp evidence outranks the imported flags; flags only refine
// the label within the stage the timestamps prove.
func Classify(u models.WIPUnit) string {
	switch {
	case u.JiraTransferDate != nil:
		// Transferred out, RMA or not - it has left the building.
		return models.StageOutflow
	case u.JiraInvoiceDate != nil:
		if u.IsRMA {
			return models.StageRMA
		}
		return models.StageWIP
	case u.EMGShipDate != nil:
		if u.IsRMA {
			return models.StageRMA
		}
		return models.StageWIP
	case u.ReceivedDate != nil:
		if u.IsRMA {
			return models.StageRMA
		}
		if u.IsCATVIntake && !u.IsWIP {
			return models.StageOtherIntake
		}
		return models.StageIntake
	default:
		return models.StageUnknown
	}
}

// Derive fills all computed fields on a normalized unit: stage, outflow
// date, receipt week when absent, and aging as of now. It is the single
// derivation path used by import and by read-time recomputation.
func Derive(u models.WIPUnit, now time.Time) models.WIPUnit {
	u.Stage = Classify(u)
	u.OutflowDate = nil
	if u.Stage == models.StageOutflow {
		u.OutflowDate = u.JiraTransferDate
	}
	if u.ISOYearWeekReceived == "" && u.ReceivedDate != nil {
		u.ISOYearWeekReceived = ISOYearWeek(*u.ReceivedDate)
	}
	u.AgingDays, u.AgingBucket = Aging(u, now)
	return u
}

// Aging computes elapsed days and the bucket classification. Outflow units
// freeze at the received-to-outflow delta; everything else ages against
// today. Units without a received date are excluded from aging aggregates.
func Aging(u models.WIPUnit, now time.Time) (*int, string) {
	if u.ReceivedDate == nil {
		return nil, ""
	}
	ref := now
	if u.Stage == models.StageOutflow {
		if u.OutflowDate == nil {
			return nil, ""
		}
		ref = *u.OutflowDate
	}
	days := int(ref.Sub(*u.ReceivedDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days, AgingBucketFor(days)
}

func AgingBucketFor(days int) string {
	switch {
	case days <= 7:
		return "0-7"
	case days <= 14:
		return "8-14"
	case days <= 30:
		return "15-30"
	default:
		return ">30"
	}
}
