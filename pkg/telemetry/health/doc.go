// Package health provides liveness and readiness checks for Arbiter.
//
// Components register a CheckFunc with the Checker. Critical components
// (decision log storage) make the service unhealthy when they fail;
// non-critical ones (the policy evaluator, the query result cache) only
// degrade it, because decisions keep being served fail-closed.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCriticalCheck("storage", store.Ping)
//	checker.RegisterCheck("evaluator", client.Health)
//
//	router.Get("/health/live", checker.LivenessHandler())
//	router.Get("/health/ready", checker.ReadinessHandler())
//
// Checks run concurrently, each bounded by the checker's timeout.
package health
