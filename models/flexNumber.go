package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
)

// FlexNumber is a numeric cell that tolerates what people actually type.
// It holds either a parsed decimal or the raw un-parseable string the
// operator entered. Parsing failures are NOT errors: the raw value is
// kept verbatim and the next validation pass flags it, so the operator is
// never blocked mid-edit.
type FlexNumber struct {
	dec    decimal.Decimal
	raw    string
	parsed bool
}

func NewFlexFromDecimal(d decimal.Decimal) *FlexNumber {
	return &FlexNumber{dec: d, parsed: true}
}

func NewFlexFromFloat(f float64) *FlexNumber {
	return &FlexNumber{dec: decimal.NewFromFloat(f), parsed: true}
}

// NewFlexFromString parses formatted amounts ("1,234.50", "$ 20,000").
// Unparseable input is retained raw.
func NewFlexFromString(s string) *FlexNumber {
	cleaned := utils.CleanNumericString(s)
	if cleaned != "" {
		if d, err := decimal.NewFromString(cleaned); err == nil {
			return &FlexNumber{dec: d, parsed: true}
		}
	}
	return &FlexNumber{raw: s}
}

// Decimal returns the parsed value; ok is false for raw strings.
func (n *FlexNumber) Decimal() (decimal.Decimal, bool) {
	if n == nil || !n.parsed {
		return decimal.Zero, false
	}
	return n.dec, true
}

func (n *FlexNumber) Parsed() bool {
	return n != nil && n.parsed
}

// Raw returns the original un-parseable input ("" when parsed).
func (n *FlexNumber) Raw() string {
	if n == nil || n.parsed {
		return ""
	}
	return n.raw
}

func (n *FlexNumber) String() string {
	if n == nil {
		return ""
	}
	if n.parsed {
		return n.dec.String()
	}
	return n.raw
}

func (n *FlexNumber) Equal(other *FlexNumber) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.parsed != other.parsed {
		return false
	}
	if n.parsed {
		return n.dec.Equal(other.dec)
	}
	return n.raw == other.raw
}

// MarshalJSON emits a JSON number when parsed and the raw string
// otherwise, matching the wire contract where numeric fields may carry
// either shape.
func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if n.parsed {
		return []byte(n.dec.String()), nil
	}
	return json.Marshal(n.raw)
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = FlexNumber{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*n = *NewFlexFromString(str)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("flex number: %w", err)
	}
	*n = FlexNumber{dec: d, parsed: true}
	return nil
}

// Value stores the decimal; raw strings persist as NULL (they can never
// reach the approved tables, the error gate blocks them first).
func (n FlexNumber) Value() (driver.Value, error) {
	if !n.parsed {
		return nil, nil
	}
	return n.dec.String(), nil
}

func (n *FlexNumber) Scan(value interface{}) error {
	if value == nil {
		*n = FlexNumber{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		*n = FlexNumber{dec: d, parsed: true}
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*n = FlexNumber{dec: d, parsed: true}
	case float64:
		*n = FlexNumber{dec: decimal.NewFromFloat(v), parsed: true}
	case int64:
		*n = FlexNumber{dec: decimal.NewFromInt(v), parsed: true}
	default:
		return fmt.Errorf("flex number: cannot scan %T", value)
	}
	return nil
}
