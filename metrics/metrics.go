package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/repo-acceptor/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "rat"
)

var (
	Debug                bool = true
	validResults              = []types.Status{types.StatusPass, types.StatusFail}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	repoResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "repo_results_total",
		Help:      "Count of per-repository test run outcomes",
	}, []string{
		"org",
		"run_id",
		"repo",
		"result",
	})

	batchResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_results",
		Help:      "Result of the latest batch",
	}, []string{
		"org",
		"run_id",
		"result",
	})

	batchRepoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_repo_total",
		Help:      "Total number of repositories in the batch",
	}, []string{
		"org",
		"run_id",
	})

	batchRepoPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_repo_passed",
		Help:      "Number of repositories whose tests passed",
	}, []string{
		"org",
		"run_id",
	})

	batchRepoFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_repo_failed",
		Help:      "Number of repositories whose tests failed",
	}, []string{
		"org",
		"run_id",
	})

	batchDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_duration",
		Help:      "Duration of the batch in seconds",
	}, []string{
		"org",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRepoResult records the outcome of one repository's test run.
func RecordRepoResult(org string, runID string, repo string, result types.Status) {
	if !isValidResult(result) {
		log.Error("RecordRepoResult - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "repo_results_total",
			"org", org,
			"run_id", runID,
			"repo", repo,
			"result", result)
	}
	repoResultsTotal.WithLabelValues(org, runID, repo, string(result)).Inc()
}

// RecordBatch records the aggregate outcome of a batch.
func RecordBatch(
	org string,
	runID string,
	result types.Status,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	batchResults.WithLabelValues(org, runID, string(result)).Set(1)
	batchRepoTotal.WithLabelValues(org, runID).Add(float64(total))
	batchRepoPassed.WithLabelValues(org, runID).Add(float64(passed))
	batchRepoFailed.WithLabelValues(org, runID).Add(float64(failed))
	batchDuration.WithLabelValues(org, runID).Set(duration.Seconds())
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
