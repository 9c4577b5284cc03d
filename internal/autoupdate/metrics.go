package autoupdate

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/simplesurance/prupdater/internal/logfields"
)

const metricNamespace = "prupdater"

// PushJobName is the job label that is used when metrics are pushed to a
// Prometheus Pushgateway.
const PushJobName = "prupdater"

const (
	runsMetricName         = "runs_total"
	candidatePRsMetricName = "candidate_prs"
	eligiblePRsMetricName  = "eligible_prs"
)

const (
	repositoryLabel = "repository"
	baseBranchLabel = "base_branch"
	outcomeLabel    = "outcome"
)

// Metrics records the results of update runs in its own Prometheus
// registry.
type Metrics struct {
	logger       *zap.Logger
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	candidatePRs *prometheus.GaugeVec
	eligiblePRs  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		logger:   zap.L().Named(loggerName).Named("metrics"),
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of update runs by outcome",
			},
			[]string{repositoryLabel, baseBranchLabel, outcomeLabel},
		),
		candidatePRs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      candidatePRsMetricName,
				Help:      "count of open pull requests retrieved in the last run",
			},
			[]string{repositoryLabel, baseBranchLabel},
		),
		eligiblePRs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      eligiblePRsMetricName,
				Help:      "count of eligible pull requests in the last run",
			},
			[]string{repositoryLabel, baseBranchLabel},
		),
	}
}

func (m *Metrics) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func branchLabels(branchID *BranchID) prometheus.Labels {
	return prometheus.Labels{
		repositoryLabel: fmt.Sprintf("%s/%s", branchID.RepositoryOwner, branchID.Repository),
		baseBranchLabel: branchID.Branch,
	}
}

func (m *Metrics) RunsInc(branchID *BranchID, outcome Outcome) {
	labels := branchLabels(branchID)
	labels[outcomeLabel] = outcome.String()

	cnt, err := m.runs.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *Metrics) SetPRCounts(branchID *BranchID, candidates, eligible int) {
	labels := branchLabels(branchID)

	g, err := m.candidatePRs.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(candidatePRsMetricName, err)
	} else {
		g.Set(float64(candidates))
	}

	g, err = m.eligiblePRs.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(eligiblePRsMetricName, err)
		return
	}

	g.Set(float64(eligible))
}

// Gatherer returns the registry containing the recorded metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends all recorded metrics to the Prometheus Pushgateway at url.
// Metrics of previous pushes of the job are replaced.
func (m *Metrics) Push(ctx context.Context, url string) error {
	return push.New(url, PushJobName).
		Gatherer(m.registry).
		PushContext(ctx)
}
