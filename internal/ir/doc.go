// Package ir provides the scalar value model shared by every tabula package.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal. This keeps the stored
// representation the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Storage never holds live object references. Rows are Snapshots:
//     flat name → Value maps copied out of an entity at write time.
//   - Value is a sealed union (Null, Bool, Int, Float, String). Richer host
//     types (time.Time, uuid.UUID, narrow integers) are normalized on the
//     way in and coerced back by the materializer.
//   - Keys are ordered Value tuples. Their map identity is the canonical
//     JSON encoding (see MarshalCanonical), so equality is elementwise and
//     order-sensitive.
package ir
