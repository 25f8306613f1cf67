package objectstore

import (
	"fmt"
	"strings"
)

// BuildKey constructs the canonical object key for one product image, per
// spec §4.2 step 5: `products/<productId>_<role>_<epochMs>.<ext>`.
func BuildKey(productID, role string, epochMs int64, ext string) string {
	return fmt.Sprintf("products/%s_%s_%d.%s", productID, role, epochMs, ext)
}

// legacyPrefixes are the historical URL path prefixes this store must
// still recognize on read, per spec §6.4. Never produced on write.
var legacyPrefixes = []string{"/originals/", "/images/"}

// NormalizeLegacyKey rewrites a legacy-prefixed path (or URL) to the
// current `products/<filename>` key scheme. A path (or URL path) that
// starts with `/products/` is returned without its leading slash. Any
// other input is returned unchanged (it is assumed to already be a
// current-scheme key). The rewrite happens "on the next write" per spec
// §6.4 — this function only computes what that rewritten key would be;
// callers are responsible for actually re-uploading under it.
func NormalizeLegacyKey(raw string) string {
	path := raw
	if idx := strings.Index(path, "://"); idx >= 0 {
		rest := path[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		}
	}

	for _, prefix := range legacyPrefixes {
		if strings.HasPrefix(path, prefix) {
			filename := strings.TrimPrefix(path, prefix)
			return "products/" + filename
		}
	}

	if strings.HasPrefix(path, "/products/") {
		return strings.TrimPrefix(path, "/")
	}

	return raw
}

// IsLegacyKey reports whether raw carries one of the recognized legacy
// prefixes (after stripping a scheme://host:port, if present).
func IsLegacyKey(raw string) bool {
	path := raw
	if idx := strings.Index(path, "://"); idx >= 0 {
		rest := path[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		}
	}

	for _, prefix := range legacyPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
