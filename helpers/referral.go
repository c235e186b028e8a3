package helpers

import (
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ"

func randomLetters(n int) string {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[src.Intn(len(letterBytes))]
	}
	return string(b)
}

// NewReferralCode builds a code like "RU240517KQ3F9A": name initials, the
// date, two letters and four hex digits.
func NewReferralCode(fullName string, now time.Time) string {
	var initials strings.Builder
	for _, word := range strings.Fields(fullName) {
		r := []rune(word)[0]
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			initials.WriteRune(unicode.ToUpper(r))
		}
		if initials.Len() == 2 {
			break
		}
	}
	if initials.Len() == 0 {
		initials.WriteString("MX")
	}

	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return initials.String() + now.Format("060102") + randomLetters(2) + suffix
}

// NormalizeReferralCode makes lookups case and whitespace insensitive.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
