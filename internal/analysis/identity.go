package analysis

import (
	"regexp"
	"strings"
)

// Matches GitHub noreply emails: "id+user@users.noreply.github.com" or
// "user@users.noreply.github.com".
var noreplyRe = regexp.MustCompile(`(?i)^(?:\d+\+)?(.+)@users\.noreply\.github\.com$`)

// Strips GitHub numeric ID prefixes from names like "2937652+micsparre".
var ghIDPrefixRe = regexp.MustCompile(`^\d+\+`)

// Heuristic bot detection for git commit authors, complementing the
// API-reported bot flag.
var botPatternRe = regexp.MustCompile(`(?i)\[bot\]|github-actions|dependabot|renovate|greenkeeper|semantic-release`)

// IsBotContributor detects bot contributors from name/email patterns.
func IsBotContributor(name, email string) bool {
	return botPatternRe.MatchString(name) || botPatternRe.MatchString(email)
}

// EmailResolver rewrites noreply emails to a contributor's real email
// so the git identity and the pull-request identity share one key.
type EmailResolver func(email string) string

// NewEmailResolver builds a resolver over a login→email map derived
// from pull-request author metadata.
func NewEmailResolver(loginToEmail map[string]string) EmailResolver {
	byLogin := make(map[string]string, len(loginToEmail))
	for login, email := range loginToEmail {
		byLogin[strings.ToLower(login)] = email
	}

	return func(email string) string {
		m := noreplyRe.FindStringSubmatch(email)
		if m == nil {
			return email
		}
		if real, ok := byLogin[strings.ToLower(m[1])]; ok {
			return real
		}
		return email
	}
}

// MatchLoginsToEmails maps GitHub usernames to git emails. Precedence
// per username: exact email-prefix match, then domain-name match, then
// 3+-character prefix containment in either direction. Ambiguity is
// inherent to the problem; first match wins within each strategy pass
// over the contributor list.
func MatchLoginsToEmails(emails []string, usernames []string) map[string]string {
	result := make(map[string]string)
	unmatched := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		unmatched[strings.ToLower(u)] = true
	}

	for _, email := range emails {
		emailLower := strings.ToLower(email)
		prefix, domain, _ := strings.Cut(emailLower, "@")
		// Noreply form "12345+username@...": the prefix is the username.
		if _, after, found := strings.Cut(prefix, "+"); found {
			prefix = after
		}
		domainName, _, _ := strings.Cut(domain, ".")

		for uname := range unmatched {
			switch {
			// davidism@gmail.com ↔ davidism
			case uname == prefix:
			// m@mitchellh.com ↔ mitchellh
			case uname == domainName:
			case len(uname) >= 3 && (strings.HasPrefix(prefix, uname) || strings.HasPrefix(uname, prefix)):
			default:
				continue
			}
			result[uname] = email
			delete(unmatched, uname)
		}
	}

	return result
}
