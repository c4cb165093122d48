package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	// Matches full profile URLs and bare github.com/<handle> mentions.
	githubRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com/[A-Za-z0-9_.-]+`)

	educationTokens = []string{
		"university", "college", "institute", "polytechnic", "school of",
		"bachelor", "master", "ph.d", "phd", "b.s.", "m.s.", "b.a.", "m.a.",
		"b.sc", "m.sc", "mba",
	}

	// Handles that are GitHub site sections, not user profiles.
	githubReserved = map[string]struct{}{
		"search": {}, "features": {}, "topics": {}, "orgs": {},
		"about": {}, "pricing": {}, "login": {}, "signup": {},
		"explore": {}, "marketplace": {}, "settings": {},
	}
)

// FindEmail returns the first email address in text, or nil.
func FindEmail(text string) *string {
	m := emailRe.FindString(text)
	if m == "" {
		return nil
	}
	return &m
}

// FindGitHub returns the first GitHub profile URL in text, normalized to the
// https://github.com/<handle> form, or nil. Bare github.com/<handle> mentions
// count; links into GitHub's own site sections do not.
func FindGitHub(text string) *string {
	for _, m := range githubRe.FindAllString(text, -1) {
		if url := normalizeGitHub(m); url != nil {
			return url
		}
	}
	return nil
}

// normalizeGitHub canonicalizes a matched github.com reference. Returns nil
// when the handle is empty or a reserved site path.
func normalizeGitHub(raw string) *string {
	s := strings.TrimRight(strings.TrimSpace(raw), ".,;:)")
	lower := strings.ToLower(s)
	idx := strings.Index(lower, "github.com/")
	if idx < 0 {
		return nil
	}
	handle := s[idx+len("github.com/"):]
	if slash := strings.IndexByte(handle, '/'); slash >= 0 {
		handle = handle[:slash]
	}
	handle = strings.TrimRight(handle, ".")
	if handle == "" {
		return nil
	}
	if _, reserved := githubReserved[strings.ToLower(handle)]; reserved {
		return nil
	}
	url := "https://github.com/" + handle
	return &url
}

// FallbackExtract derives resume fields from raw text with regexes and line
// heuristics. It always returns a value; every field may be unknown.
func FallbackExtract(text string) *harvest.ResumeFields {
	fields := &harvest.ResumeFields{Experiences: []string{}}
	if strings.TrimSpace(text) == "" {
		return fields
	}

	fields.Email = FindEmail(text)
	fields.GitHub = FindGitHub(text)

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if looksLikeName(line) {
			fields.Name = &line
		}
		break
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isEducationLine(line) {
			fields.Education = &line
			break
		}
	}
	return fields
}

// looksLikeName accepts a short line of letters, spaces and common name
// punctuation. Digits disqualify a line outright.
func looksLikeName(line string) bool {
	if len(line) > 60 {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 5 {
		return false
	}
	for _, r := range line {
		switch {
		case unicode.IsLetter(r), unicode.IsSpace(r):
		case r == '.' || r == '-' || r == '\'':
		default:
			return false
		}
	}
	return true
}

func isEducationLine(line string) bool {
	lower := strings.ToLower(line)
	for _, tok := range educationTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
