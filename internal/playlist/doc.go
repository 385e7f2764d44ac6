// Package playlist reads HLS media playlists (.m3u8).
//
// Only the subset produced by a single-rendition VOD encode is interpreted:
// version, target duration, media sequence, playlist type, end list and
// segment entries with their #EXTINF durations. Other tags are skipped.
//
// [Verify] is used after stream generation to confirm that every segment
// named by the playlist exists next to it, so a job is never reported as
// complete with a playlist that cannot be played to the end.
package playlist
