package provisioning

import "strings"

// DerivePassword builds the initial password for a provisioned identity:
// the given name (first whitespace-delimited token of name), "@", and the
// first four characters of the mobile number.
//
// This is a convenience default that anyone knowing the member's name and
// phone can guess. It is not a security control; the member is expected to
// change it after first login.
func DerivePassword(name, mobileNumber string) string {
	given := ""
	if fields := strings.Fields(name); len(fields) > 0 {
		given = fields[0]
	}
	return given + "@" + firstN(strings.TrimSpace(mobileNumber), 4)
}

func firstN(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
