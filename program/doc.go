// Package program defines the on-disk image that carries compiled routines
// to the host, and its CBOR encoding.
//
// An image is produced by an external compiler. The host reads it, checks
// it fits the device, and uploads every routine and constant through a
// session.
package program
