// Package preflight provides readiness checks for the services and paths
// librarian depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs a warning for each failure
//     so a misconfigured collaborator is visible before the first request.
//   - The CLI "librarian status" command renders RunAll results next to the
//     daemon state.
//
// Checks for optional collaborators are skipped when their section is
// disabled.
package preflight
