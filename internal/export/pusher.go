package export

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
)

// Pusher replaces one metrics group on the sink.
type Pusher interface {
	Push(ctx context.Context, job string, grouping map[string]string, g prometheus.Gatherer) error
}

// GatewayPusher pushes to a Prometheus Pushgateway. Each push replaces the
// whole group identified by job and grouping labels.
type GatewayPusher struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
}

func (p *GatewayPusher) Push(ctx context.Context, job string, grouping map[string]string, g prometheus.Gatherer) error {
	pusher := push.New(p.URL, job).
		Gatherer(g).
		Format(expfmt.NewFormat(expfmt.TypeTextPlain))
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if p.Username != "" {
		pusher = pusher.BasicAuth(p.Username, p.Password)
	}
	if p.Client != nil {
		pusher = pusher.Client(p.Client)
	}
	return pusher.PushContext(ctx)
}

// MockPusher records pushes in memory.
type MockPusher struct {
	mu     sync.Mutex
	Pushes []Push
	// Fail returns an error for a push, or nil to accept it.
	Fail func(job string, grouping map[string]string) error
}

// Push is one recorded push. Samples are keyed by name{label="value",...}.
type Push struct {
	Job      string
	Grouping map[string]string
	Samples  map[string]float64
}

func (m *MockPusher) Push(_ context.Context, job string, grouping map[string]string, g prometheus.Gatherer) error {
	if m.Fail != nil {
		if err := m.Fail(job, grouping); err != nil {
			return err
		}
	}
	families, err := g.Gather()
	if err != nil {
		return err
	}
	samples := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"=\""+lp.GetValue()+"\"")
			}
			sort.Strings(labels)
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			samples[key] = metric.GetGauge().GetValue()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pushes = append(m.Pushes, Push{Job: job, Grouping: grouping, Samples: samples})
	return nil
}

// Find returns the push for the given job whose grouping contains every
// label in match.
func (m *MockPusher) Find(job string, match map[string]string) (Push, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
next:
	for _, p := range m.Pushes {
		if p.Job != job {
			continue
		}
		for k, v := range match {
			if p.Grouping[k] != v {
				continue next
			}
		}
		return p, true
	}
	return Push{}, false
}
