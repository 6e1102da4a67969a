// Package authcore implements the security core of the Auralis desktop
// assistant: credential authentication with lockout, session lifecycle,
// TOTP two-factor authentication with one-time backup codes, role-based
// access control, and an append-only audit journal.
//
// The package is the public surface. It exposes [Engine] (the local
// coordinator), [Hybrid] (remote-first façade), [Builder], [Config], and
// value types (User, Session, LoginResult). Persistence lives in store/,
// the audit journal in journal/, the RBAC model in permission/, and the
// remote identity client in remote/.
//
// # Architecture boundaries
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The engine never exposes raw
// password material, TOTP secrets, or backup-code plaintext beyond the
// single call that generates them.
//
// # What this package must NOT do
//
//   - Surface store or remote transport errors verbatim to callers;
//     they are mapped to the shared error taxonomy at the boundary.
//   - Block the caller on audit delivery. Journal writes are buffered
//     and failures are diverted to the diagnostic logger.
//   - Treat "not found" as an error. Absence is a nil result.
package authcore
