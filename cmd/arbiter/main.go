// Arbiter is a policy decision and compliance audit engine for financial
// intents.
//
// It fronts an external policy evaluator, providing:
//   - Pre-check gating and cached policy decisions
//   - Tamper-evident, encrypted decision logs with tiered retention
//   - Audit queries, exports and compliance reports
//   - An operations audit of every administrative action
//
// Usage:
//
//	# Start the API server
//	arbiter serve --config /etc/arbiter/config.yaml
//
//	# Evaluate one intent from a file
//	arbiter evaluate --file intent.json
//
//	# Query the audit trail
//	arbiter logs query --start 2025-03-01 --end 2025-03-31 --decision deny
//
//	# Generate a compliance report
//	arbiter report compliance_summary --start 2025-01-01 --end 2025-03-31
//
//	# Purge logs past their retention tier
//	arbiter purge
package main

import "os"

func main() {
	os.Exit(Execute())
}
