package imagefetch

import "bytes"

// sniffFormat identifies an image by its magic bytes, per spec §4.2 step
// 3: "pick extension from signature, not filename". Returns ("", false)
// for anything not JPEG/PNG/WebP — those are the only formats the spec
// names as verifiable.
func sniffFormat(data []byte) (format, ext string, ok bool) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg", "jpg", true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png", "png", true
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", "webp", true
	default:
		return "", "", false
	}
}
