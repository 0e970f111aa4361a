// Package evaluator is the client for the external policy evaluator.
//
// The engine never interprets policy documents itself. It sends the intent
// and the ordered list of policy ids to the evaluator and normalizes the
// answer into a decision.PolicyDecision:
//
//   - a boolean result maps to allow (true) or deny (false)
//   - an object with "conditional": true and a non-empty "conditions" list
//     maps to a conditional decision with the conditions carried verbatim
//   - an object with "allow" maps to allow or deny, honoring "reason"
//   - an absent result is a deny
//
// HTTPClient retries transport failures and 429/5xx responses with
// exponential backoff, limits request rate with golang.org/x/time/rate and
// guards the evaluator with a github.com/sony/gobreaker/v2 circuit breaker.
// Exhausted retries surface as *EvaluationError. Policy uploads rejected by
// the evaluator surface as *PolicyLoadError, distinct from *TransportError.
package evaluator
