package cache

import (
	"testing"

	"github.com/freegin/freegin-ai/internal/metrics"
)

// counterValue reads one labelled counter out of the registry.
func counterValue(t *testing.T, m *metrics.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.PromRegistry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, mf := range fam.GetMetric() {
			got := make(map[string]string, len(mf.GetLabel()))
			for _, lp := range mf.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			return mf.GetCounter().GetValue()
		}
	}
	return 0
}
