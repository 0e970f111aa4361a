// Package decision defines the data model shared by every stage of the
// authorization pipeline: the FinancialIntent a caller submits, the
// PolicyDecision it receives, and the helpers that validate and fingerprint
// intents.
//
// # Intents
//
// A FinancialIntent describes who is attempting which financial operation,
// on what data, from where, and under which regulatory context. Validate
// checks its structural shape and returns a *ValidationError (or a
// ValidationErrors set) for missing required fields or unknown enum values.
//
// # Decisions
//
// A PolicyDecision is always complete: it carries a verdict, the ordered
// list of policies that were evaluated (empty when the request never
// reached the evaluator), a non-empty reason, any conditions for
// conditional verdicts, timing information, and the evaluator's raw
// payload for audit.
//
// # Fingerprints
//
// Fingerprint produces the cache identity of an intent. Per-request
// identifiers are excluded so that repeated identical requests can share a
// cached decision:
//
//	fp := decision.Fingerprint(intent, false)
package decision
