// Package security groups Arbiter's credential handling.
//
// Subpackages:
//   - secrets: environment and file secret providers for the audit master key
//     and connection strings
//   - auth: API key authentication for administrative HTTP routes
package security
