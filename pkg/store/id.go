package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// slugPattern matches the restricted character set that ids and namespaces
// are built from: lowercase alphanumerics and interior hyphens. The
// orchestrator client checks ids and namespaces against it before building
// any command, so a malformed identifier never reaches an external binary.
// Hosts contain dots and are not checked against it.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// GenerateID creates an opaque store identifier of the form
// "store-<8 lowercase hex>".
func GenerateID() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generating store id: %w", err)
	}
	return "store-" + hex.EncodeToString(buf[:]), nil
}

// Host builds the DNS host for a store id under the given suffix.
func Host(id, dnsSuffix string) string {
	return fmt.Sprintf("%s.%s", id, dnsSuffix)
}

// ValidSlug reports whether s is safe to pass as an orchestrator argument:
// lowercase alphanumerics with interior hyphens only.
func ValidSlug(s string) bool {
	return s != "" && slugPattern.MatchString(s)
}
