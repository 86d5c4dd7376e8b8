package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
	"github.com/SkySingh04/DreamOps-sub002/internal/telemetry"
)

// Report is the outcome of handling one alert: the context gathered from
// capability servers and the ordered actions for the executor.
type Report struct {
	ID          string                        `json:"id" yaml:"id"`
	Alert       resolution.AlertSignal        `json:"alert" yaml:"alert"`
	Category    string                        `json:"category,omitempty" yaml:"category,omitempty"`
	Context     ContextBundle                 `json:"context" yaml:"context"`
	Actions     []resolution.ResolutionAction `json:"actions" yaml:"actions"`
	GeneratedAt time.Time                     `json:"generated_at" yaml:"generated_at"`
}

// IncidentService turns alerts into reports: gather context, resolve, record.
type IncidentService struct {
	gatherer *ContextGatherer
	resolver *resolution.Resolver
	cache    *DecisionCache
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	meters   *telemetry.Meters
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// IncidentOption configures an IncidentService.
type IncidentOption func(*IncidentService)

// WithIncidentMetrics records resolutions in Prometheus metrics.
func WithIncidentMetrics(m *telemetry.Metrics) IncidentOption {
	return func(s *IncidentService) {
		s.metrics = m
	}
}

// WithIncidentMeters records resolutions in OTel instruments.
func WithIncidentMeters(m *telemetry.Meters) IncidentOption {
	return func(s *IncidentService) {
		s.meters = m
	}
}

// WithDecisionCache replaces the default decision cache.
func WithDecisionCache(c *DecisionCache) IncidentOption {
	return func(s *IncidentService) {
		s.cache = c
	}
}

// WithIncidentClock overrides the report clock and ID source. Used by tests.
func WithIncidentClock(now func() time.Time, newID func() string) IncidentOption {
	return func(s *IncidentService) {
		s.now = now
		s.newID = newID
	}
}

// NewIncidentService creates the service. A nil gatherer produces reports
// without context.
func NewIncidentService(gatherer *ContextGatherer, resolver *resolution.Resolver, logger *slog.Logger, opts ...IncidentOption) *IncidentService {
	s := &IncidentService{
		gatherer: gatherer,
		resolver: resolver,
		cache:    NewDecisionCache(DefaultDecisionCacheSize),
		logger:   logger,
		tracer:   telemetry.Tracer(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle builds the report for one alert. Context gathering runs only when
// withContext is set and a gatherer is configured.
func (s *IncidentService) Handle(ctx context.Context, alert resolution.AlertSignal, withContext bool) *Report {
	ctx, span := s.tracer.Start(ctx, "incident.handle")
	defer span.End()

	report := &Report{
		ID:      s.newID(),
		Alert:   alert,
		Context: ContextBundle{},
	}

	if withContext && s.gatherer != nil {
		report.Context = s.gatherer.Gather(ctx, alert)
	}

	decision := s.Resolve(ctx, alert)
	report.Category = decision.Category
	report.Actions = decision.Actions
	report.GeneratedAt = s.now()

	span.SetAttributes(
		attribute.String("report.id", report.ID),
		attribute.String("category", decision.Category),
		attribute.Int("actions", len(decision.Actions)),
		attribute.Int("context", len(report.Context)),
	)
	s.logger.Info("alert resolved",
		"report", report.ID,
		"category", categoryLabel(decision.Category),
		"actions", len(decision.Actions),
		"context_results", len(report.Context),
	)
	return report
}

// Resolve returns the resolver decision for an alert, memoized by alert
// fingerprint.
func (s *IncidentService) Resolve(ctx context.Context, alert resolution.AlertSignal) resolution.Decision {
	_, span := s.tracer.Start(ctx, "resolver.resolve")
	defer span.End()

	key := resolution.Fingerprint(alert)
	decision, hit := s.cache.Get(key)
	if hit {
		if s.metrics != nil {
			s.metrics.ResolveCacheHits.Inc()
		}
	} else {
		decision = s.resolver.Decide(alert)
		s.cache.Put(key, decision)
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit), attribute.String("category", decision.Category))

	label := categoryLabel(decision.Category)
	if s.metrics != nil {
		s.metrics.ResolutionsTotal.WithLabelValues(label).Inc()
		for _, a := range decision.Actions {
			s.metrics.ActionsTotal.WithLabelValues(a.ActionType, string(a.RiskLevel)).Inc()
		}
	}
	if s.meters != nil {
		s.meters.ResolutionCount.Add(ctx, 1, telemetry.WithAttrs(attribute.String("category", label)))
	}
	return decision
}

func categoryLabel(category string) string {
	if category == "" {
		return "none"
	}
	return category
}
