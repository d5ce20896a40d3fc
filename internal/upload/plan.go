package upload

// ChunkSize is the largest payload carried by a single UPLOAD or CHUNK frame.
const ChunkSize = 65535

// Span is one frame's share of a payload.
type Span struct {
	Offset int
	Size   int
	Last   bool
}

func (s Span) End() int { return s.Offset + s.Size }

// Chunked reports whether a payload of n bytes needs a partitioned upload.
func Chunked(n int) bool {
	return n > ChunkSize
}

// Plan splits n bytes into frame spans. Payloads up to ChunkSize fit in one
// UPLOAD; larger ones become an UPLOAD followed by CHUNK frames, the last of
// which is flagged.
func Plan(n int) []Span {
	if n <= 0 {
		return nil
	}
	if !Chunked(n) {
		return []Span{{Offset: 0, Size: n, Last: true}}
	}
	spans := make([]Span, 0, (n+ChunkSize-1)/ChunkSize)
	for off := 0; off < n; off += ChunkSize {
		size := min(ChunkSize, n-off)
		spans = append(spans, Span{Offset: off, Size: size, Last: off+ChunkSize >= n})
	}
	return spans
}

// chunkProgress is the percent reported after writing span: the share of the
// payload sent so far, held at 98 until the server confirms.
func chunkProgress(span Span, total int) float64 {
	pct := float64(span.End()) / float64(total) * 100
	if pct > 98 {
		return 98
	}
	return pct
}
