// Package identity derives job identities from uploaded filenames and maps
// them onto the uploads, videos and thumbnails roots.
//
// [BaseName] is a pure function: the same filename always yields the same
// name. A [Namespace] adds an optional disambiguation token ([Strategy]),
// computes the per-job [Paths] and serialises jobs that resolve to the same
// name through [Namespace.Lock].
package identity
