package storage

// validBucketName reports whether name satisfies the bucket naming
// invariants: 3-63 octets, lowercase ASCII letters, digits, and hyphens only,
// not starting or ending with a hyphen. Unlike AWS's full DNS-compatibility
// rule set, periods and IP-address-shaped names are simply rejected rather
// than special-cased, since no component here ever parses a bucket name out
// of a DNS label.
func validBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
