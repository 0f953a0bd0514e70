package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxFolderNameLength = 100
	hashSuffixLength    = 12

	EmptyThemeFolder = "sin-tema"
	emptyFiling      = "sin-radicado"
	emptyDate        = "sin-fecha"
	emptyProcess     = "sin-proceso"
)

var (
	safeComponentRegex = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	componentRegex     = regexp.MustCompile(`[^A-Za-z0-9-]+`)
	folderRegex        = regexp.MustCompile(`[^a-zA-Z0-9 -]+`)
	dashRunRegex       = regexp.MustCompile(`-{2,}`)
)

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// FolderName turns a free-text label into a single safe path segment.
func FolderName(label string) string {
	sanitized := folderRegex.ReplaceAllString(foldAccents(strings.TrimSpace(label)), "_")
	sanitized = strings.Trim(sanitized, " _")
	if len(sanitized) > maxFolderNameLength {
		sanitized = strings.TrimRight(sanitized[:maxFolderNameLength], " _")
	}
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	if sanitized == "" {
		return EmptyThemeFolder
	}
	return sanitized
}

// DocumentFileName builds sentencia_<filing>_<date>.pdf. When either part
// has to be rewritten to be path safe, a short hash of the raw parts is
// appended so distinct entries keep distinct names; lossy reports that case.
// Without a filing number the process number takes its place in both the
// name and the hash, since many entries share a date.
func DocumentFileName(filing, date, process string) (name string, lossy bool) {
	filing = strings.TrimSpace(filing)
	date = strings.TrimSpace(date)
	process = strings.TrimSpace(process)

	if safeComponentRegex.MatchString(filing) && safeComponentRegex.MatchString(date) {
		return "sentencia_" + filing + "_" + date + ".pdf", false
	}

	key := filing + "\x00" + date
	parts := []string{"sentencia", cleanComponent(filing, emptyFiling)}
	if filing == "" {
		key += "\x00" + process
		parts = append(parts, cleanComponent(process, emptyProcess))
	}
	sum := sha256.Sum256([]byte(key))
	parts = append(parts, cleanComponent(date, emptyDate), hex.EncodeToString(sum[:])[:hashSuffixLength])

	return strings.Join(parts, "_") + ".pdf", true
}

func cleanComponent(s, fallback string) string {
	s = componentRegex.ReplaceAllString(foldAccents(s), "-")
	s = strings.Trim(dashRunRegex.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return fallback
	}
	return s
}
