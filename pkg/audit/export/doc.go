// Package export writes decision logs as JSON or CSV for compliance
// reviewers and for the archive written before retention purges.
// Both exporters support streaming from a channel so large exports do not
// hold every log in memory.
package export
