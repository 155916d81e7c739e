// Package storage validates the external artifact references agents
// attach to consults. Attachments are links, not uploads; the files
// themselves live wherever the agent put them.
package storage

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	maxTitleLen = 256
	maxURILen   = 2048
)

var allowedSchemes = map[string]bool{
	"https": true,
	"http":  true,
}

// ValidateAttachment checks an attachment reference before it enters a
// consult's log. The log is append-only, so nothing broken should get
// in.
func ValidateAttachment(title, uri string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("attachment title is required")
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("attachment title exceeds %d characters", maxTitleLen)
	}
	if uri == "" {
		return fmt.Errorf("attachment uri is required")
	}
	if len(uri) > maxURILen {
		return fmt.Errorf("attachment uri exceeds %d characters", maxURILen)
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("attachment uri is not a valid URL: %w", err)
	}
	if !allowedSchemes[parsed.Scheme] {
		return fmt.Errorf("attachment uri scheme %q is not allowed", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("attachment uri has no host")
	}
	return nil
}
