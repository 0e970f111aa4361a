// Package audit defines the compliance audit trail: the immutable
// DecisionLog written for every authorization decision, the storage
// contracts backends implement, and the retention and compliance rules
// shared by the write and purge paths.
//
// # Decision logs
//
// A DecisionLog embeds the intent and decision verbatim and adds an audit
// envelope (trace id, user, roles, compliance flags, data classification,
// retention period), a compliance summary, a keyed integrity hash and a
// month partition key. Sensitive fields are sealed before they reach
// storage; see package integrity.
//
// # Retention
//
// RetentionPolicy.YearsFor is the single function that assigns a retention
// tier:
//
//	Indigenous data involved   → 50 years
//	Privacy law applicable     → 10 years
//	Otherwise                  →  7 years
//
// The purge job asks storage for the tiers present and removes, per tier,
// every log older than now minus the tier's period. The tier stored on a
// log is authoritative.
//
// # Subpackages
//
//   - integrity: HMAC signing, field sealing and key derivation
//   - storage:   memory, SQLite and PostgreSQL backends
//   - logger:    synchronous and batched decision logger
//   - query:     validated, filtered, paginated audit queries
//   - retention: tiered purge and its cron scheduler
//   - export:    JSON and CSV writers
package audit
