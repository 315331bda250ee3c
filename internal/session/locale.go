package session

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLocale converts a BCP 47 or POSIX locale ("en-us", "de_DE.UTF-8")
// to the ll_CC form the service expects. Tags without a region keep only the
// language. An empty input yields DefaultLocale.
func NormalizeLocale(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLocale, nil
	}
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", s, err)
	}

	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence == language.Exact {
		return base.String() + "_" + region.String(), nil
	}
	return base.String(), nil
}
