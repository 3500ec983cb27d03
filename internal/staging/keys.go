// Package staging writes raw API payloads into the raw zone and reads them
// back as flat record batches.
package staging

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// RawKey builds {prefix}/{source}/dt={YYYY-MM-DD}/{unix}.json.
func RawKey(prefix, source string, fetchedAt time.Time, unix int64) string {
	return fmt.Sprintf("%s/%s/dt=%s/%d.json", trimSlash(prefix), source, fetchedAt.UTC().Format(dateLayout), unix)
}

// SourcePrefix is the listing prefix for every raw object of a source. The
// trailing slash keeps "crm" from matching "crm_archive".
func SourcePrefix(prefix, source string) string {
	return fmt.Sprintf("%s/%s/", trimSlash(prefix), source)
}

func trimSlash(s string) string {
	return strings.Trim(s, "/")
}
