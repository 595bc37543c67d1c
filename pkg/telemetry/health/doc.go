// Package health provides the liveness, readiness and version endpoints.
//
// # Probes
//
// Liveness only reports that the process serves HTTP. Readiness pings the
// catalog store and the usage ledger concurrently, each bounded by
// telemetry.health.check_timeout, and answers 503 when any of them fails:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("catalog", health.PingCheck(catalogStore))
//	checker.RegisterCheck("usage", health.PingCheck(ledger))
//
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
//	r.Get("/version", health.VersionHandler(version, commit, buildTime))
package health
