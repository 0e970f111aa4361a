// Package report turns decision logs into compliance reports.
//
// Three fixed shapes are produced: a compliance summary with per-regime
// counts, a per-user activity report with risk heuristics, and a policy
// effectiveness report. Generation is pure; fetching the logs and storing
// snapshots is left to the caller.
package report
