// Package executor runs the library organizer for a completed download.
//
// Runner translates the job's content path from the torrent host's namespace
// into the organizer's, writes a per-job configuration file, and hands the
// invocation to the executor for the job's target:
//
//   - Local runs `<command> <program> --config <file>` as a subprocess.
//   - Remote does the same over SSH. It keeps the organizer program in sync
//     over SFTP, skipping the upload when the remote digest stamp already
//     matches, and writes job files under content-addressed names so a
//     repeated invocation never rewrites them.
//
// Transport failures surface as ErrRemoteUnreachable; a non-zero exit or an
// execution timeout surfaces as ErrOrganizerFailed.
package executor
