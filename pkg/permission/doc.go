// Package permission evaluates who may read, write and manage objects.
//
// Permissions come from two sources: ownership, where an object is
// accessible to its owner and to whoever holds the same permission on
// the owning group, and permission links, directed edges from a user or
// group (the tail) to any object (the head) named "can_read",
// "can_write" or "can_manage". Links into groups are followed
// transitively.
//
// Group permissions are memoized in an explicit Cache handed to
// NewGraph. Callers invalidate it when permission links change.
package permission
