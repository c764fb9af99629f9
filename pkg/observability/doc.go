/*
Package observability turns engine lifecycle hooks into logs, Prometheus
metrics and OpenTelemetry spans.

Each integration returns a domain.LifecycleHooks value; Compose merges them
so a single engine option carries all of them:

	hooks := observability.Compose(
		observability.LoggingHooks(logger, observability.DefaultMasker()),
		metrics.Hooks(),
		observability.NewTracing(tp).Hooks(),
	)
*/
package observability
