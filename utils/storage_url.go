package utils

import (
	"net/url"
	"os"
	"strings"
)

// BuildObjectAccessURL returns the canonical (unsigned) URL recorded next to a stored file.
func BuildObjectAccessURL(bucket, objectKey string) string {
	base := strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL"))
	if base != "" {
		if strings.Contains(base, "{objectKey}") {
			escaped := objectKey
			if strings.Contains(base, "?") {
				escaped = url.QueryEscape(objectKey)
			}
			return strings.ReplaceAll(base, "{objectKey}", escaped)
		}
		if strings.Contains(base, "?") {
			return base + url.QueryEscape(objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}

	host := strings.TrimSpace(os.Getenv("GCS_URL"))
	if host == "" {
		host = "storage.googleapis.com"
	}
	if bucket == "" {
		return objectKey
	}
	return "https://" + host + "/" + bucket + "/" + objectKey
}
