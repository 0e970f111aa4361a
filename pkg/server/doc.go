// Package server exposes the decision engine over HTTP.
//
// Routes:
//
//	POST   /v1/decisions              evaluate one intent
//	POST   /v1/decisions/batch        evaluate up to 100 intents
//	GET    /v1/logs                   query decision logs
//	GET    /v1/logs/export            stream logs as JSON or CSV
//	GET    /v1/logs/{id}              fetch one log
//	POST   /v1/logs/{id}/outcome      attach the real-world outcome
//	GET    /v1/reports                list stored report snapshots
//	GET    /v1/reports/{type}         generate a compliance report
//	GET    /v1/stats                  engine statistics
//	GET    /v1/policies               loaded policy ids (admin)
//	PUT    /v1/policies/{id}          load a policy document (admin)
//	DELETE /v1/policies/{id}          remove a policy document (admin)
//	POST   /v1/admin/purge            run the retention purge (admin)
//	POST   /v1/admin/verify           verify log integrity over a range (admin)
//	POST   /v1/admin/cache/clear      clear decision and query caches (admin)
//	GET    /v1/admin/operations       operations audit (admin)
//
// Admin routes require an API key when authentication is enabled. Health,
// version and metrics endpoints are always unauthenticated.
package server
