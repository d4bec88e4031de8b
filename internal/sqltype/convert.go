package sqltype

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order for the date domain.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	time.RFC3339,
}

// dateTimeLayouts are tried in order for the datetime domain.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02",
	"02.01.2006",
}

// Convert parses a raw request value into the Go value for the domain:
//
//	string, barcode  string
//	integer          int64
//	decimal          decimal.Decimal
//	boolean          bool
//	date, datetime   time.Time
//	binary           []byte ("0x" prefixed hex, or the raw bytes)
//	identifier       uuid.UUID
//
// Unrecognised domains are treated as string.
func Convert(raw string, d Domain) (interface{}, error) {
	switch d {
	case DomainInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		return n, nil

	case DomainDecimal:
		v, err := decimal.NewFromString(strings.TrimSpace(strings.Replace(raw, ",", ".", 1)))
		if err != nil {
			return nil, fmt.Errorf("not a decimal: %q", raw)
		}
		return v, nil

	case DomainBoolean:
		return parseBool(raw)

	case DomainDate:
		return parseTime(raw, dateLayouts)

	case DomainDateTime:
		return parseTime(raw, dateTimeLayouts)

	case DomainBinary:
		s := strings.TrimSpace(raw)
		if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
			b, err := hex.DecodeString(s[2:])
			if err != nil {
				return nil, fmt.Errorf("invalid hex literal: %q", raw)
			}
			return b, nil
		}
		return []byte(raw), nil

	case DomainIdentifier:
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("not a uuid: %q", raw)
		}
		return id, nil

	default:
		return raw, nil
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on", "ja":
		return true, nil
	case "0", "f", "false", "n", "no", "off", "nein":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

func parseTime(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date/time: %q", raw)
}
