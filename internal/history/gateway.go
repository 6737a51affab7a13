package history

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/icemetrics/icemetrics/internal/aggregate"
	"github.com/icemetrics/icemetrics/internal/export"
)

// Gateway reads the previous aggregate group back from the Pushgateway.
// Recording is a no-op: the aggregate push itself becomes the next
// baseline.
type Gateway struct {
	URL      string
	Job      string
	Username string
	Password string
	Client   *http.Client
}

func (g *Gateway) Previous(ctx context.Context, warehouse string) (*aggregate.Baseline, error) {
	url := g.URL
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(url, "/")+"/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("building gateway request: %w", err)
	}
	if g.Username != "" {
		req.SetBasicAuth(g.Username, g.Password)
	}

	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching gateway metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching gateway metrics: unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway metrics: %w", err)
	}
	return g.baseline(families, warehouse), nil
}

// baseline extracts the warehouse's group. It returns nil when the group
// has never been pushed.
func (g *Gateway) baseline(families map[string]*dto.MetricFamily, warehouse string) *aggregate.Baseline {
	inGroup := func(m *dto.Metric) bool {
		return label(m, "job") == g.Job && label(m, "warehouse") == warehouse
	}
	samples := func(name string) []*dto.Metric {
		var out []*dto.Metric
		for _, m := range families[name].GetMetric() {
			if inGroup(m) {
				out = append(out, m)
			}
		}
		return out
	}

	total := samples(export.WarehouseBytes)
	if len(total) == 0 {
		return nil
	}
	b := &aggregate.Baseline{
		Warehouse:      warehouse,
		TotalBytes:     int64(total[0].GetGauge().GetValue()),
		NamespaceBytes: make(map[string]int64),
	}
	if ts := samples(export.LastSuccessTimestamp); len(ts) > 0 {
		b.CollectedAt = time.Unix(int64(ts[0].GetGauge().GetValue()), 0).UTC()
	}
	if info := samples(export.CollectionInfo); len(info) > 0 {
		b.RunID = label(info[0], "run_id")
	}
	if failures := samples(export.TableFailures); len(failures) > 0 {
		b.Partial = failures[0].GetGauge().GetValue() > 0
	}

	failed := make(map[string]bool)
	for _, m := range samples(export.NamespaceFailures) {
		failed[label(m, "database")] = true
	}
	for _, m := range samples(export.NamespaceBytes) {
		ns := label(m, "database")
		if !failed[ns] {
			b.NamespaceBytes[ns] = int64(m.GetGauge().GetValue())
		}
	}
	return b
}

func (g *Gateway) Record(context.Context, aggregate.Baseline) error { return nil }
func (g *Gateway) Close(context.Context) error                      { return nil }

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
