// Package artifact locates the firmware binary produced by an external
// compile step. The build tool has changed its output layout across
// versions, so the resolver tries an ordered list of known layout
// conventions, newest first, and falls back to a wildcard sweep of the
// build root. Within a convention that can yield several candidates the
// choice is made by a pure scoring function; see Score for the ranking
// policy.
//
// Not finding an artifact is a normal, expected outcome after a compile
// that produced no binary (a tool version change, typically), not a
// defect in the resolver.
package artifact
