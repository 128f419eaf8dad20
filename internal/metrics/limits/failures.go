package limits

import (
	"cryptolens/logger"
	"cryptolens/models"
)

// ReportFailures logs the consolidated failure list of a batch fetch: one
// debug line per item, one warning naming every failed item under kind+"s",
// and a fetch_failures counter for component. Nothing is logged for an empty
// list.
func ReportFailures(log *logger.Entry, component, kind string, failures []models.FetchFailure) {
	if len(failures) == 0 {
		return
	}
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.ID)
		log.WithFields(logger.Fields{kind: f.ID, "reason": f.Err}).Debug("batch failure")
	}
	log.WithComponent(component).WithFields(logger.Fields{
		"count":    len(failures),
		kind + "s": ids,
	}).Warn("errors occurred for some items")
	log.LogMetric(component, "fetch_failures", len(failures), "counter", logger.Fields{"kind": kind})
}
