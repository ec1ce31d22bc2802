package nvram

import (
	"strings"
)

const (
	// GlobalGUID is the EFI global variable namespace
	GlobalGUID = "8BE4DF61-93CA-11D2-AA0D-00E098032B8C"

	// DefaultVendorGUID is the namespace used for names written without a prefix
	DefaultVendorGUID = "E09B9297-7928-4440-9AAB-D1F8536FBF0A"

	guidLength = 36
)

// Well-known variable names
const (
	HibernateRTCVariables = "IOHibernateRTCVariables"
	HibernateSMCVariables = "IOHibernateSMCVariables"
	FakeSMCHBKP           = "fakesmc-key-HBKP-ch8*"
	Boot0082              = "Boot0082"
	BootNext              = "BootNext"
)

// PrefixedName returns name qualified by a vendor GUID, as "GUID:name"
func PrefixedName(guid, name string) string {
	return guid + ":" + name
}

// SplitPrefixedName separates a "GUID:name" variable name. Names without a valid
// GUID prefix are returned unchanged with an empty guid.
func SplitPrefixedName(full string) (guid, name string) {
	if len(full) > guidLength+1 && full[guidLength] == ':' && ValidGUID(full[:guidLength]) {
		return strings.ToUpper(full[:guidLength]), full[guidLength+1:]
	}
	return "", full
}

// ValidGUID reports whether s has the 8-4-4-4-12 hexadecimal GUID form
func ValidGUID(s string) bool {
	if len(s) != guidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
