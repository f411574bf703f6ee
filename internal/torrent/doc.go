// Package torrent wraps the qBittorrent WebAPI behind the narrow Client
// interface the lifecycle engine depends on: list known hashes, submit a
// download, and list the active downloads of a category.
//
// QBittorrent logs in lazily and collapses concurrent full listings into a
// single WebAPI call.
package torrent
