package logger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

type componentStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// ComponentCounts returns the warn and error totals recorded for component.
func ComponentCounts(component string) (warns, errors int64) {
	v, ok := components.Load(component)
	if !ok {
		return 0, 0
	}
	cs := v.(*componentStat)
	return atomic.LoadInt64(&cs.warns), atomic.LoadInt64(&cs.errors)
}

// ResetCounts clears every recorded warn and error count.
func ResetCounts() {
	components.Range(func(k, _ any) bool {
		components.Delete(k)
		return true
	})
}

// LogRunReport writes the end-of-run summary. The caller supplies the run
// level fields; per component warn/error totals are appended. Numeric fields
// are published as metrics and the CloudWatch queue is flushed.
func LogRunReport(ctx context.Context, log *Log, fields Fields) {
	if fields == nil {
		fields = make(Fields)
	}

	warnsByComponent := map[string]int64{}
	errorsByComponent := map[string]int64{}
	var totalWarns, totalErrors int64
	components.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*componentStat)
		w := atomic.LoadInt64(&cs.warns)
		e := atomic.LoadInt64(&cs.errors)
		warnsByComponent[name] = w
		errorsByComponent[name] = e
		totalWarns += w
		totalErrors += e
		return true
	})

	fields["warnings"] = totalWarns
	fields["errors"] = totalErrors
	fields["warnings_by_component"] = warnsByComponent
	fields["errors_by_component"] = errorsByComponent

	log.WithComponent("report").WithFields(fields).Info("run report")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if val, ok := toFloat(fields[k]); ok {
			queueMetric(k, val, map[string]string{"component": "report"})
		}
	}

	FlushMetrics(ctx)
}
