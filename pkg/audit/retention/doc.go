// Package retention purges expired decision logs.
//
// Every log carries the retention tier chosen when it was written
// (7, 10 or 50 years by default). The pruner walks each tier, computes the
// cutoff for that tier and removes older logs in one storage transaction,
// optionally writing a JSON archive first. A cron scheduler runs purges
// automatically.
package retention
