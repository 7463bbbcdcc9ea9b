package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without panicking.
// Used to log a recognisable prefix of identifiers.
//
//	SafeTruncate("very-long-grant-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                 // "short"
//	SafeTruncate("test", -1)                  // ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// RemoveQueryParam drops every raw name=value segment for name from the
// query of uri. The remaining segments keep their original encoding and order.
//
//	RemoveQueryParam("/a?x=1&y=2&x=3", "x") // "/a?y=2"
func RemoveQueryParam(uri, name string) string {
	path, query, ok := strings.Cut(uri, "?")
	if !ok {
		return uri
	}

	kept := make([]string, 0, strings.Count(query, "&")+1)
	for _, seg := range strings.Split(query, "&") {
		key, _, _ := strings.Cut(seg, "=")
		if key == name || seg == "" {
			continue
		}
		kept = append(kept, seg)
	}

	if len(kept) == 0 {
		return path
	}
	return path + "?" + strings.Join(kept, "&")
}

// AppendQueryParam appends an already escaped name=value pair to the query
// of uri using '?' or '&' as appropriate. A fragment stays at the end.
//
//	AppendQueryParam("https://x/cb#top", "code", "abc") // "https://x/cb?code=abc#top"
func AppendQueryParam(uri, name, escapedValue string) string {
	base, fragment, hasFragment := strings.Cut(uri, "#")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	out := base + sep + name + "=" + escapedValue
	if hasFragment {
		out += "#" + fragment
	}
	return out
}
