// Package logger persists decision logs.
//
// Every log is classified for compliance, assigned a retention tier by the
// shared audit.RetentionPolicy, signed with the keyed integrity hash and,
// when encryption is enabled, has its sensitive fields sealed before it
// reaches storage.
//
// # Write Modes
//
// ModeSync writes each log before Log returns. ModeBatch appends to a
// mutex-guarded buffer that is flushed when BatchSize logs are waiting or
// FlushInterval elapses, whichever comes first. A failed flush keeps the
// batch buffered for the next attempt; Close performs a final flush and
// returns a PersistenceError if it fails.
//
// # Basic Usage
//
//	l, err := logger.New(store, protector, &logger.Config{Mode: logger.ModeBatch})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Close()
//
//	entry, err := l.Log(ctx, intent, decision)
package logger
