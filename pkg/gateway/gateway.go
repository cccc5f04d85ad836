// Package gateway turns metric requests into backend queries and normalized samples.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/tosin2013/metrics-gateway/internal/integrations"
	"github.com/tosin2013/metrics-gateway/pkg/models"
)

const (
	podLabel model.LabelName = "pod"

	bytesPerMebibyte = 1048576
	percentFactor    = 100
)

// ErrInvalidWindow is returned by windowed operations called with a non-positive window
var ErrInvalidWindow = errors.New("window must be a positive number of seconds")

// Stage names the step of an operation that failed
type Stage string

// Operation stages
const (
	StageTemplate Stage = "template"
	StageExecute  Stage = "execute"
	StageParse    Stage = "parse"
	StageResolve  Stage = "resolve"
	StageRecord   Stage = "record"
)

// GatewayError wraps the failure of a gateway operation with its kind and stage.
// The cause is one of *integrations.ExecutionError, *integrations.ParseError,
// *integrations.IdentityError, ErrInvalidWindow or a record validation error.
type GatewayError struct {
	Op    models.MetricKind
	Stage Stage
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s query failed at %s stage: %v", e.Op, e.Stage, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// QueryExecutor runs a PromQL instant query and returns the raw response body
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (string, error)
}

// NodeResolver takes a point-in-time view of the node inventory
type NodeResolver interface {
	Snapshot(ctx context.Context) (*integrations.NodeIndex, error)
}

// transform converts a backend value into the unit exposed for a kind
type transform func(float64) float64

func toPercent(v float64) float64 { return v * percentFactor }

func toMebibytes(v float64) float64 { return v / bytesPerMebibyte }

func identity(v float64) float64 { return v }

// Gateway serves pod and node metrics. Each call performs exactly one backend
// query, plus one inventory listing for node kinds with a non-empty result.
// It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	catalog  *Catalog
	executor QueryExecutor
	resolver NodeResolver
	log      *logrus.Logger
}

// New creates a gateway. A nil catalog means DefaultCatalog.
func New(catalog *Catalog, executor QueryExecutor, resolver NodeResolver, log *logrus.Logger) *Gateway {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Gateway{
		catalog:  catalog,
		executor: executor,
		resolver: resolver,
		log:      log,
	}
}

// PodsCPU returns per-pod CPU usage in percent of one core over the window
func (g *Gateway) PodsCPU(ctx context.Context, windowSeconds int) ([]models.PodMetric, error) {
	return g.collectPods(ctx, models.MetricKindPodCPU, windowSeconds, toPercent)
}

// PodsMemory returns per-pod working set memory in MiB
func (g *Gateway) PodsMemory(ctx context.Context) ([]models.PodMetric, error) {
	return g.collectPods(ctx, models.MetricKindPodMemory, 0, toMebibytes)
}

// PodsHits returns per-pod HTTP request rate over the window
func (g *Gateway) PodsHits(ctx context.Context, windowSeconds int) ([]models.PodMetric, error) {
	return g.collectPods(ctx, models.MetricKindPodHits, windowSeconds, identity)
}

// NodesCPU returns per-node non-idle CPU in percent over the window
func (g *Gateway) NodesCPU(ctx context.Context, windowSeconds int) ([]models.NodeMetric, error) {
	return g.collectNodes(ctx, models.MetricKindNodeCPU, windowSeconds, toPercent)
}

// NodesMemory returns per-node memory utilization in percent
func (g *Gateway) NodesMemory(ctx context.Context) ([]models.NodeMetric, error) {
	return g.collectNodes(ctx, models.MetricKindNodeMemory, 0, identity)
}

func (g *Gateway) collectPods(ctx context.Context, kind models.MetricKind, windowSeconds int, fn transform) ([]models.PodMetric, error) {
	startTime := time.Now()

	points, err := g.query(ctx, kind, windowSeconds)
	if err != nil {
		return nil, g.fail(err, startTime)
	}

	metrics := make([]models.PodMetric, 0, len(points))
	for _, p := range points {
		m, err := models.NewPodMetric(p.Label(podLabel), fn(p.Value), p.TimestampRaw)
		if err != nil {
			return nil, g.fail(&GatewayError{Op: kind, Stage: StageRecord, Err: err}, startTime)
		}
		metrics = append(metrics, m)
	}

	g.succeed(kind, windowSeconds, len(metrics), startTime)
	return metrics, nil
}

func (g *Gateway) collectNodes(ctx context.Context, kind models.MetricKind, windowSeconds int, fn transform) ([]models.NodeMetric, error) {
	startTime := time.Now()

	points, err := g.query(ctx, kind, windowSeconds)
	if err != nil {
		return nil, g.fail(err, startTime)
	}

	metrics := make([]models.NodeMetric, 0, len(points))
	if len(points) == 0 {
		g.succeed(kind, windowSeconds, 0, startTime)
		return metrics, nil
	}

	index, err := g.resolver.Snapshot(ctx)
	if err != nil {
		return nil, g.fail(&GatewayError{Op: kind, Stage: StageResolve, Err: err}, startTime)
	}
	g.log.WithFields(logrus.Fields{
		"operation": kind,
		"series":    len(points),
		"addresses": index.Len(),
	}).Debug("Resolving node identities")

	for _, p := range points {
		nodeName, err := index.Resolve(p.Label(model.InstanceLabel))
		if err != nil {
			return nil, g.fail(&GatewayError{Op: kind, Stage: StageResolve, Err: err}, startTime)
		}

		m, err := models.NewNodeMetric(nodeName, fn(p.Value), p.TimestampRaw)
		if err != nil {
			return nil, g.fail(&GatewayError{Op: kind, Stage: StageRecord, Err: err}, startTime)
		}
		metrics = append(metrics, m)
	}

	g.succeed(kind, windowSeconds, len(metrics), startTime)
	return metrics, nil
}

// query renders the template for kind, executes it and parses the body
func (g *Gateway) query(ctx context.Context, kind models.MetricKind, windowSeconds int) ([]integrations.RawSeriesPoint, error) {
	template := g.catalog.TemplateFor(kind)
	if kind.IsWindowed() && windowSeconds <= 0 {
		return nil, &GatewayError{Op: kind, Stage: StageTemplate, Err: ErrInvalidWindow}
	}
	query := template.Render(windowSeconds)

	body, err := g.executor.Execute(ctx, query)
	if err != nil {
		return nil, &GatewayError{Op: kind, Stage: StageExecute, Err: err}
	}

	points, err := integrations.ParseQueryResponse([]byte(body))
	if err != nil {
		return nil, &GatewayError{Op: kind, Stage: StageParse, Err: err}
	}

	g.log.WithFields(logrus.Fields{
		"kind":   kind,
		"query":  query,
		"points": len(points),
	}).Debug("Parsed query response")

	return points, nil
}

func (g *Gateway) succeed(kind models.MetricKind, windowSeconds, records int, startTime time.Time) {
	duration := time.Since(startTime)
	RecordOperation(string(kind), duration, records)

	g.log.WithFields(logrus.Fields{
		"kind":        kind,
		"window":      windowSeconds,
		"records":     records,
		"duration_ms": duration.Milliseconds(),
	}).Debug("Metrics retrieved")
}

func (g *Gateway) fail(err error, startTime time.Time) error {
	duration := time.Since(startTime)

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		RecordOperationError(string(gwErr.Op), gwErr.Stage, duration)
		g.log.WithFields(logrus.Fields{
			"kind":        gwErr.Op,
			"stage":       gwErr.Stage,
			"duration_ms": duration.Milliseconds(),
		}).WithError(gwErr.Err).Debug("Metrics retrieval failed")
	}
	return err
}
