// Package runtime drives the external container runtime: executing
// commands inside the build container, copying files out of it, and
// checking that the runtime and container are present at all.
//
// Every execution is bounded by the caller's context. Commands run in
// their own process group; when the context is cancelled mid-flight the
// whole group receives SIGTERM, so descendant build tooling dies with
// its parent instead of lingering. Per-call timeouts are layered on the
// same mechanism.
package runtime
