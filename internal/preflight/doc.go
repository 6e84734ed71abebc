// Package preflight provides readiness checks for the filesystem paths,
// database, and schema that consentsync depends on.
//
// The CLI "consentsync doctor" command runs RunAll and renders each Result.
// The reconciliation commands do not depend on these checks; they fail on
// their own errors. Doctor exists so operators can see every problem at once
// before a run.
package preflight
