// Package lzstring implements the URI-safe variant of the lz-string adaptive
// dictionary codec.
//
// Hashlist pages publish their torrent payload as a compressed fragment using
// a 65 character alphabet (A-Z, a-z, 0-9, '+', '-', '$'), six bits per
// character. Decode reverses that encoding into the original UTF-16 text and
// Encode produces compatible output. Neither function keeps state between
// calls, so both are safe for concurrent use.
package lzstring
