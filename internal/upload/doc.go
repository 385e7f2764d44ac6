// Package upload receives video payloads from multipart HTTP requests.
//
// The [Receiver] reads the body part by part with [net/http.Request.MultipartReader],
// so only the current chunk is held in memory. The first part whose field
// name is "video" and which carries a filename is written to a fresh file in
// the uploads root while a BLAKE2b-256 digest is computed over the same
// bytes. Other parts are skipped. If no such part exists the receiver
// returns [ErrInputMissing] without touching the filesystem.
package upload
