package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var meter = otel.Meter("github.com/zhejian/glasslink/internal/service")

var (
	linksCreated   = counter("glasslink.links.created", "Short links created")
	codeCollisions = counter("glasslink.links.code_collisions", "Generated short codes rejected by the unique index")
	redirects      = counter("glasslink.redirects", "Redirect requests by outcome")
	authEvents     = counter("glasslink.auth.events", "Authentication events by kind and result")
)

// Redirect outcomes
const (
	outcomeCounted   = "counted"
	outcomeDuplicate = "duplicate"
	outcomeBot       = "bot"
	outcomeUnlogged  = "unlogged"
	outcomeNotFound  = "not_found"
	outcomeExpired   = "expired"
)

func counter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}
