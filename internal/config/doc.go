// Package config loads, normalizes, and validates librarian configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// QBIT_URL, SEEDBOX_HOST and PATH_MAPPINGS. The Config type centralizes every
// knob the daemon and CLI need so torrent client access, approval timing, the
// organizer target and path translation are discovered in one pass.
package config
