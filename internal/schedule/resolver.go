// Package schedule maps source priority and cadence onto cron expressions
// and wraps the concrete timer mechanism behind a small registry interface.
package schedule

import (
	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// Tier overrides win over a source's self-declared cadence so operational
// priority always decides how often a source runs. Each class is anchored to
// its own minute-of-day; co-scheduling hundreds of sources at the same
// instant is the failure mode this spacing exists to avoid.
var tierExpressions = map[ingest.Tier]string{
	ingest.Tier1: "0 2 * * *",   // daily at 02:00
	ingest.Tier2: "0 3 * * 1,4", // Mon+Thu at 03:00
	ingest.Tier3: "0 4 * * 1",   // Mon at 04:00
	ingest.Tier4: "0 5 * * 1",   // Mon at 05:00
}

var cadenceExpressions = map[ingest.Cadence]string{
	ingest.CadenceContinuous: "@every 15s",
	ingest.CadenceDaily:      "0 2 * * *",
	ingest.CadenceWeekly:     "0 3 * * 1",
	ingest.CadenceMonthly:    "0 4 1 * *",
	ingest.CadenceQuarterly:  "0 5 1 */3 *",
	ingest.CadenceAnnual:     "0 6 1 1 *",
	// Sunday 07:00, a weekly slot reviewed manually.
	ingest.CadenceIrregular: "0 7 * * 0",
}

// Resolve returns the cron expression for a (tier, cadence) pair.
// Deterministic and side-effect free; callers recompute it rather than
// persisting it, so expression and inputs cannot drift apart.
func Resolve(tier ingest.Tier, cadence ingest.Cadence) string {
	if expr, ok := tierExpressions[tier]; ok {
		return expr
	}
	if expr, ok := cadenceExpressions[cadence]; ok {
		return expr
	}
	return cadenceExpressions[ingest.CadenceIrregular]
}
