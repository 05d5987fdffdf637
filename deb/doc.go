// Package deb implements the indexing engine for a Debian/Ubuntu-style APT
// repository on a local filesystem: control-paragraph parsing, the
// Packages/Sources catalogues, the canonical dists/ directory layout, the
// Release file hierarchy, and the create/add/remove/update/sign operations
// that keep all of it consistent.
//
// # Design Philosophy
//
// The package favours in-process implementations over forking external
// tools wherever the two are byte-identical: control extraction from a
// .deb reads the ar/tar/gzip structure directly, hashing uses the standard
// crypto packages, and PGP clearsign decode/detached-sign use
// github.com/ProtonMail/go-crypto/openpgp. The external-tool forms
// (dpkg-deb, *sum, gpg) remain available behind the same interfaces for
// callers that want the literal external-tool contract.
//
// # Scope
//
// Out of scope: the CLI front-end (cmd/aptrepo is a thin dispatcher only),
// dependency resolution, package building, repository signing key
// management, concurrent multi-writer access, and network transport.
package deb
