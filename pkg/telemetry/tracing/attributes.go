package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on pipeline spans.
const (
	AttrEndpoint    = attribute.Key("pulse.endpoint")
	AttrInstance    = attribute.Key("pulse.instance")
	AttrRecords     = attribute.Key("pulse.records")
	AttrGroups      = attribute.Key("pulse.groups")
	AttrCommands    = attribute.Key("pulse.store.commands")
	AttrDegraded    = attribute.Key("pulse.degraded")
	AttrBacklog     = attribute.Key("pulse.backlog")
	AttrPublishKind = attribute.Key("pulse.publish.kind")
	AttrEntries     = attribute.Key("pulse.publish.entries")
)

// SetFlushAttributes describes a writer flush.
func SetFlushAttributes(span trace.Span, records, groups, commands int) {
	span.SetAttributes(
		AttrRecords.Int(records),
		AttrGroups.Int(groups),
		AttrCommands.Int(commands),
	)
}

// SetFailoverAttributes describes the failover state at the end of a span.
func SetFailoverAttributes(span trace.Span, degraded bool, backlog int) {
	span.SetAttributes(
		AttrDegraded.Bool(degraded),
		AttrBacklog.Int(backlog),
	)
}

// SetPublishAttributes describes a sampler publication cycle.
func SetPublishAttributes(span trace.Span, kind string, entries int) {
	span.SetAttributes(
		AttrPublishKind.String(kind),
		AttrEntries.Int(entries),
	)
}
