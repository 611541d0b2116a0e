package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"ledger-transfers/internal/errors"
)

const (
	ibanCountry     = "FR"
	ibanBBANDigits  = 23
	ibanLength      = 4 + ibanBBANDigits
	ibanGroupLength = 4
)

var ibanPattern = regexp.MustCompile(`^FR[0-9]{25}$`)

// IBAN is a checksum-valid French IBAN in canonical (unformatted) form.
type IBAN struct {
	value string
}

// ParseIBAN accepts the formatted or canonical representation.
func ParseIBAN(raw string) (IBAN, error) {
	clean := strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw))

	if !ibanPattern.MatchString(clean) {
		return IBAN{}, errors.ErrInvalidIBANFormat.WithDetails("expected FR followed by 25 digits")
	}
	if !ValidIBANChecksum(clean) {
		return IBAN{}, errors.ErrInvalidIBANFormat.WithDetails("checksum mismatch")
	}
	return IBAN{value: clean}, nil
}

// GenerateIBAN returns a random checksum-valid FR IBAN. Uniqueness is the
// repository's concern.
func GenerateIBAN() (IBAN, error) {
	return GenerateIBANFrom(rand.Reader)
}

// GenerateIBANFrom draws the BBAN digits from r. Bytes of 250 and above are
// discarded so every digit is equally likely.
func GenerateIBANFrom(r io.Reader) (IBAN, error) {
	buf := make([]byte, ibanBBANDigits)
	var bban strings.Builder
	bban.Grow(ibanBBANDigits)

	for bban.Len() < ibanBBANDigits {
		if _, err := io.ReadFull(r, buf[:ibanBBANDigits-bban.Len()]); err != nil {
			return IBAN{}, fmt.Errorf("read random digits: %w", err)
		}
		for _, b := range buf[:ibanBBANDigits-bban.Len()] {
			if b >= 250 {
				continue
			}
			bban.WriteByte('0' + b%10)
		}
	}

	check := 98 - mod97(ibanCountry+"00"+bban.String())
	return IBAN{value: fmt.Sprintf("%s%02d%s", ibanCountry, check, bban.String())}, nil
}

// ValidIBANChecksum applies the ISO 13616 mod-97 check to a canonical IBAN.
func ValidIBANChecksum(s string) bool {
	if len(s) < 5 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return mod97(s) == 1
}

// mod97 moves the first four characters to the end, maps letters to 10..35
// and reduces the resulting numeral digit by digit.
func mod97(s string) int {
	rearranged := s[4:] + s[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		}
	}
	return rem
}

func (i IBAN) String() string { return i.value }
func (i IBAN) IsZero() bool   { return i.value == "" }

// Formatted groups the IBAN in blocks of four for display only.
func (i IBAN) Formatted() string {
	var b strings.Builder
	for idx, r := range i.value {
		if idx > 0 && idx%ibanGroupLength == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
