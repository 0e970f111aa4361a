// Package query implements the audit query engine.
//
// Every query must carry a time range; Validate rejects one without it
// before storage is touched. Results report the total number of matches
// independent of pagination, whether more pages exist, and whether the
// page came from the secondary cache.
//
// The Builder composes common compliance filters:
//
//	q, err := query.NewBuilder().
//	    RecentActivity(24 * time.Hour).
//	    DeniedOnly().
//	    IndigenousDataOnly().
//	    Build()
//
// The Engine verifies the integrity hash of every returned log and opens
// sealed fields. An integrity violation fails the whole query. Cached
// pages (in memory or in Redis) hold logs in their sealed form and may be
// stale by up to the configured TTL.
package query
