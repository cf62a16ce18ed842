// Package ir provides the in-memory intermediate representation rewritten by
// gpuflat.
//
// The model follows the usual SSA-with-regions shape: a Func owns a Region,
// a Region owns Blocks, a Block owns an ordered list of Ops, and an Op owns
// its result Values and nested Regions. Block arguments are Values too.
// Value identity is pointer identity; printing assigns fresh numbers on
// every call so an unattached or discarded Value never shows up in output.
//
// Package layering: ir imports only internal/affine. Every other internal
// package imports ir.
//
// Key design constraints:
//   - Integer types only (index, i64) plus an opaque memref buffer type
//   - Ops are created detached and only become visible once inserted into a
//     Block, so a rewrite can stage new IR and commit it in one step
//   - Canonical JSON keys are sorted by UTF-16 code units (RFC 8785) and
//     strings are NFC normalized before hashing
package ir
