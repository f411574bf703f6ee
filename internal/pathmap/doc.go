// Package pathmap rewrites absolute paths between the torrent host's
// filesystem namespace and the organizer host's namespace.
//
// A Translator holds an ordered table of prefix pairs. Translation picks the
// longest prefix that matches at a path-component boundary and swaps it for
// its counterpart. Tables that would break the A→B→A round trip are rejected
// at construction.
package pathmap
