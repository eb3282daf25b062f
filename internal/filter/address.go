package filter

import (
	"net/mail"
	"regexp"
	"strings"
	"sync"
)

var (
	angleBracketRe = regexp.MustCompile(`^[<\s]*(.*?)[>\s]*$`)
	bareAddressRe  = regexp.MustCompile(`[^\s<>,;:"()]+@[^\s<>,;:"()]+`)

	prefixCache sync.Map // fragment -> *regexp.Regexp
)

const listIDMatchGroups = 2

// MatchesAddress reports whether address matches any fragment. A fragment with
// an @ must match from the start, allowing a +tag on the local part. A bare
// fragment matches either as a local part or as the whole domain.
func MatchesAddress(fragments []string, address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}
	for _, frag := range fragments {
		frag = strings.ToLower(frag)
		if strings.Contains(frag, "@") {
			if startsWithAddress(frag, address) {
				return true
			}
			continue
		}
		if startsWithAddress(frag+"@", address) || strings.HasSuffix(address, "@"+frag) {
			return true
		}
	}
	return false
}

func startsWithAddress(frag, address string) bool {
	return prefixPattern(frag).MatchString(address)
}

func prefixPattern(frag string) *regexp.Regexp {
	if re, ok := prefixCache.Load(frag); ok {
		return re.(*regexp.Regexp)
	}
	at := strings.LastIndex(frag, "@")
	local, domain := frag[:at], frag[at+1:]
	re := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(local) + `(?:\+[^@]*?)?@` + regexp.QuoteMeta(domain))
	prefixCache.Store(frag, re)
	return re
}

// ParseAddresses extracts lowercased addresses from a header value. Values that
// net/mail rejects fall back to a loose scan.
func ParseAddresses(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	var out []string
	if addrs, err := mail.ParseAddressList(header); err == nil {
		for _, a := range addrs {
			out = append(out, strings.ToLower(a.Address))
		}
		return out
	}
	for _, a := range bareAddressRe.FindAllString(header, -1) {
		out = append(out, strings.ToLower(a))
	}
	return out
}

// DomainOf returns the domain of the first address in a From header.
func DomainOf(from string) string {
	for _, addr := range ParseAddresses(from) {
		if dom := extractDomain(addr); dom != "" {
			return dom
		}
	}
	return ""
}

func extractDomain(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at == -1 {
		return ""
	}
	return strings.Trim(address[at+1:], ". ")
}

// NormalizeListID strips the display name and angle brackets from a List-Id value.
func NormalizeListID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if open := strings.LastIndex(raw, "<"); open != -1 {
		raw = raw[open:]
	}
	if matches := angleBracketRe.FindStringSubmatch(raw); len(matches) == listIDMatchGroups {
		raw = matches[1]
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "<"), ">")
	return strings.ToLower(strings.Trim(raw, "\" "))
}
