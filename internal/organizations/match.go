package organizations

import (
	"strings"

	"github.com/angelmondragon/licensesync/pkg/orgdata"
)

// Consumer mail providers. A license registered under one of these says
// nothing about the customer's company, so the lookup is skipped.
var defaultSkipDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk", "hotmail.com",
	"hotmail.co.uk", "outlook.com", "live.com", "msn.com", "aol.com",
	"icloud.com", "me.com", "mac.com", "comcast.net", "verizon.net",
	"att.net", "sbcglobal.net", "bellsouth.net", "cox.net", "charter.net",
	"btinternet.com", "protonmail.com", "mail.com", "gmx.com", "gmx.de",
	"web.de", "qq.com", "163.com", "126.com", "naver.com", "orange.fr",
	"wanadoo.fr", "free.fr", "t-online.de", "libero.it", "bigpond.com",
	"shaw.ca", "rogers.com", "sympatico.ca", "xtra.co.nz",
}

// TLD and country-code segments stripped off the right of a domain before
// it is compared against provider names.
var commonTLDs = map[string]struct{}{}

func init() {
	for _, tld := range []string{
		"com", "net", "org", "co", "io", "biz", "info", "edu", "gov", "mil",
		"inc", "ltd", "llc", "eu", "uk", "de", "fr", "nl", "be", "es", "it",
		"pt", "se", "no", "dk", "fi", "pl", "cz", "at", "ch", "ie", "ru",
		"ua", "au", "nz", "ca", "us", "mx", "br", "ar", "cl", "jp", "cn",
		"kr", "in", "sg", "hk", "tw", "za", "il", "tr", "gr", "hu", "ro",
	} {
		commonTLDs[tld] = struct{}{}
	}
}

// domainFromEmail takes the part after the last '@'. An address with no
// local part, or no dot past the '@', yields nothing rather than a junk
// lookup key.
func domainFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	dot := strings.LastIndex(email, ".")
	if at < 1 || dot <= at+1 {
		return ""
	}
	return email[at+1:]
}

// shortenDomain strips known TLD segments from the right and keeps the
// rightmost remaining one: "mail.company.co.uk" becomes "company".
func shortenDomain(domain string) string {
	domain = strings.TrimRight(domain, ".")
	parts := strings.Split(domain, ".")
	for len(parts) > 1 {
		if _, ok := commonTLDs[strings.ToLower(parts[len(parts)-1])]; !ok {
			break
		}
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func initialsOf(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		b.WriteRune([]rune(word)[0])
	}
	return b.String()
}

// pickMatch selects the one candidate whose name lines up with the license's
// company or domain. An exact hit (plain, by initials, or with spaces
// squeezed out) wins outright; looser prefix and word-overlap hits only
// count when they leave a single candidate standing. Ambiguity returns
// nothing: linking the wrong company is worse than linking none.
func pickMatch(company, domain string, candidates []orgdata.Organization) *orgdata.Organization {
	company = strings.TrimSpace(company)
	if len(company) < 2 || domain == "" {
		return nil
	}
	target := strings.ToLower(domain)
	companyWords := strings.Fields(strings.ToLower(company))

	var picks []int
	seen := map[string]struct{}{}
	keep := func(ix int, name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		picks = append(picks, ix)
	}

	for ix := range candidates {
		name := strings.TrimSpace(candidates[ix].Name)
		stripped := name
		if strings.Contains(stripped, ".") {
			stripped = shortenDomain(stripped)
		}
		lower := strings.ToLower(stripped)
		squeezed := strings.ReplaceAll(lower, " ", "")

		if lower == target || squeezed == target || strings.EqualFold(initialsOf(stripped), domain) {
			return &candidates[ix]
		}
		if strings.HasPrefix(lower, target) || strings.HasPrefix(squeezed, target) {
			keep(ix, name)
			continue
		}
		if wordsCovered(companyWords, strings.Fields(lower)) {
			keep(ix, name)
		}
	}

	if len(picks) == 1 {
		return &candidates[picks[0]]
	}
	return nil
}

// wordsCovered reports whether every word of the candidate name appears in
// the company name.
func wordsCovered(companyWords, nameWords []string) bool {
	if len(companyWords) == 0 || len(nameWords) == 0 {
		return false
	}
	for _, word := range nameWords {
		found := false
		for _, companyWord := range companyWords {
			if word == companyWord {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
