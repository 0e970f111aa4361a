/*
Package secrets loads credentials for Arbiter from environment variables and
mounted files.

The audit master key, the Postgres DSN and the evaluator bearer token are all
referenced by secret name in configuration. A Manager chains providers in
configuration order, returns the first successful value and caches it with a
TTL.

# Providers

  - EnvProvider: "audit_master_key" is read from ARBITER_SECRET_AUDIT_MASTER_KEY.
  - FileProvider: "audit_master_key" is read from <path>/audit_master_key, which
    must be mode 0600 or 0400. With watching enabled, any change in the
    directory invalidates the provider cache.

# References

ResolveReferences expands ${secret:name} inside connection strings:

	dsn, err := mgr.ResolveReferences(ctx, "postgres://arbiter:${secret:pg_password}@db/audit")

Manager satisfies the secret getter used by the integrity package to load
the audit encryption key.
*/
package secrets
