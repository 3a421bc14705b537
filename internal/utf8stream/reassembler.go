// Package utf8stream implements the UTF-8 stream reassembler described in
// spec.md §4.4: the backend yields one token's raw bytes per generation
// step, and a token may be a prefix of a multi-byte code point (common
// with CJK scripts and emoji). Emitting raw bytes as-is would corrupt
// client SSE frames, so this type buffers incomplete sequences across
// steps and only ever emits valid UTF-8.
//
// Per spec.md's design notes, the cache is bound to one Reassembler
// instance's lifetime (one per stream), never shared across requests —
// the reference implementation's module-level cache is called out there
// as a bug magnet this module does not reproduce.
package utf8stream

import "unicode/utf8"

// lossyThreshold is the "len(cache) > 3 (or > 4 for streaming)" rule from
// spec.md §4.4 step 3: streaming sessions get the looser threshold.
const lossyThreshold = 4

// Reassembler holds the byte buffer for one stream. Not safe for
// concurrent use; callers own one per chat stream.
type Reassembler struct {
	cache []byte
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// Feed decodes one step's raw bytes, per the spec.md §4.4 algorithm:
//  1. try to decode b standalone;
//  2. on failure, append to cache and try again;
//  3. on repeated failure, lossy-decode once the cache exceeds the
//     threshold, otherwise wait for more bytes.
func (r *Reassembler) Feed(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	r.cache = append(r.cache, b...)
	if utf8.Valid(r.cache) {
		out := string(r.cache)
		r.cache = r.cache[:0]
		return out
	}

	if len(r.cache) > lossyThreshold {
		out := decodeLossy(r.cache)
		r.cache = r.cache[:0]
		return out
	}

	return ""
}

// Finish flushes any remaining buffered bytes at session end, lossily
// decoding an incomplete trailing sequence rather than dropping it.
func (r *Reassembler) Finish() string {
	if len(r.cache) == 0 {
		return ""
	}
	out := decodeLossy(r.cache)
	r.cache = r.cache[:0]
	return out
}

// decodeLossy decodes rune by rune, substituting one U+FFFD for each byte
// that does not start a valid sequence (so a truncated multi-byte sequence
// yields one U+FFFD per byte, unlike Rust's String::from_utf8_lossy).
func decodeLossy(b []byte) string {
	out := make([]rune, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}
