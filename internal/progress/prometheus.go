package progress

import (
	"sync"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	objectsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	lastCursor   *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		objectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrikkel",
			Subsystem: "import",
			Name:      "objects_total",
			Help:      "Total number of registry objects imported.",
		}, []string{"entity"}),
		errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrikkel",
			Subsystem: "import",
			Name:      "errors_total",
			Help:      "Total number of objects that could not be imported.",
		}, []string{"entity"}),
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrikkel",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of finished import runs.",
		}, []string{"entity", "result"}),
		lastCursor: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matrikkel",
			Subsystem: "import",
			Name:      "last_cursor",
			Help:      "Id of the last object committed by the current or latest run.",
		}, []string{"entity"}),
	}
})

// PrometheusSink exports progress as Prometheus metrics.
type PrometheusSink struct {
	m *metrics

	mu   sync.Mutex
	seen map[models.EntityType]int
}

// NewPrometheusSink creates a sink registered with the default registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{m: metricsSingleton(), seen: make(map[models.EntityType]int)}
}

// delta converts a running count into the increment since the last report.
func (s *PrometheusSink) delta(entity models.EntityType, count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := count - s.seen[entity]
	if d < 0 {
		d = count
	}
	s.seen[entity] = count
	return d
}

func (s *PrometheusSink) reset(entity models.EntityType) {
	s.mu.Lock()
	delete(s.seen, entity)
	s.mu.Unlock()
}

func (s *PrometheusSink) Page(entity models.EntityType, count int, lastID int64) {
	label := string(entity)
	s.m.objectsTotal.WithLabelValues(label).Add(float64(s.delta(entity, count)))
	s.m.lastCursor.WithLabelValues(label).Set(float64(lastID))
}

func (s *PrometheusSink) Completed(entity models.EntityType, total, errors int) {
	label := string(entity)
	s.m.objectsTotal.WithLabelValues(label).Add(float64(s.delta(entity, total)))
	s.m.errorsTotal.WithLabelValues(label).Add(float64(errors))
	s.m.runsTotal.WithLabelValues(label, "completed").Inc()
	s.reset(entity)
}

func (s *PrometheusSink) Failed(entity models.EntityType, _ string, count int) {
	label := string(entity)
	s.m.objectsTotal.WithLabelValues(label).Add(float64(s.delta(entity, count)))
	s.m.errorsTotal.WithLabelValues(label).Inc()
	s.m.runsTotal.WithLabelValues(label, "failed").Inc()
	s.reset(entity)
}
