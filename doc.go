// Package authcore provides the shared types and configuration for a PKCE
// authorization-code flow engine and a layered access control pipeline.
//
// The flow engine (package flow) drives the user-facing OAuth dance:
// initiating a flow mints a verifier/state/nonce triple, persists it as a
// short-lived session, and builds the provider authorization URL; handling
// the callback validates the state, redeems the code with PKCE, and
// validates ID token claims. Access control (packages authz, ownership,
// pipeline) evaluates each request through authentication, role and
// permission, ownership, and row-level security layers, emitting buffered
// audit events (package audit) for every denial.
package authcore
