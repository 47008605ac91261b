package trial

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Extraction is the canonical partial record produced by the Field Extraction Port.
// A nil field means the customer did not state it this turn.
type Extraction struct {
	Name          *string `json:"name,omitempty"`
	Age           *int    `json:"age,omitempty"`
	Level         *Level  `json:"level,omitempty"`
	DesiredDate   *string `json:"desired_date,omitempty"`
	DesiredTime   *string `json:"desired_time,omitempty"`
	Confirmed     *bool   `json:"confirmed,omitempty"`
	WantsToCancel *bool   `json:"wants_to_cancel,omitempty"`
}

// Empty reports whether the extraction carries no values.
func (e Extraction) Empty() bool {
	return e.Name == nil && e.Age == nil && e.Level == nil &&
		e.DesiredDate == nil && e.DesiredTime == nil &&
		e.Confirmed == nil && e.WantsToCancel == nil
}

const maxCustomerAge = 120

var isoDatePattern = regexp.MustCompile(`^\d{4}-(\d{2})-(\d{2})$`)

// fieldAliases maps accepted source keys to canonical fields.
var fieldAliases = map[string]Field{
	"name":            FieldName,
	"nome":            FieldName,
	"customer_name":   FieldName,
	"age":             FieldAge,
	"idade":           FieldAge,
	"customer_age":    FieldAge,
	"level":           FieldLevel,
	"nivel":           FieldLevel,
	"customer_level":  FieldLevel,
	"desired_date":    FieldDesiredDate,
	"desired_time":    FieldDesiredTime,
	"confirmed":       FieldConfirmed,
	"wants_to_cancel": FieldWantsToCancel,
}

// NormalizeExtraction converts a loosely typed extraction payload into the canonical
// shape. Unknown keys are ignored and values of the wrong type are dropped.
func NormalizeExtraction(raw map[string]any) Extraction {
	var out Extraction
	for key, value := range raw {
		field, ok := fieldAliases[strings.ToLower(strings.TrimSpace(key))]
		if !ok || !Mergeable(field) || value == nil {
			continue
		}
		switch field {
		case FieldName:
			out.Name = normalizeString(value)
		case FieldAge:
			out.Age = normalizeAge(value)
		case FieldLevel:
			if s := normalizeString(value); s != nil {
				if lvl, err := ParseLevel(*s); err == nil {
					out.Level = &lvl
				}
			}
		case FieldDesiredDate:
			out.DesiredDate = normalizeDate(value)
		case FieldDesiredTime:
			out.DesiredTime = normalizeString(value)
		case FieldConfirmed:
			out.Confirmed = normalizeBool(value)
		case FieldWantsToCancel:
			out.WantsToCancel = normalizeBool(value)
		}
	}
	return out
}

// ParseExtractionJSON decodes a JSON object into an Extraction. Malformed input yields
// an empty extraction and the decode error.
func ParseExtractionJSON(data []byte) (Extraction, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Extraction{}, err
	}
	return NormalizeExtraction(raw), nil
}

func normalizeString(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func normalizeAge(value any) *int {
	var age int
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		age = int(v)
	case int:
		age = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil
		}
		age = int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		age = n
	default:
		return nil
	}
	if age <= 0 || age > maxCustomerAge {
		return nil
	}
	return &age
}

func normalizeBool(value any) *bool {
	switch v := value.(type) {
	case bool:
		return &v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return &b
	default:
		return nil
	}
}

// normalizeDate keeps dd-mm as is and rewrites full ISO dates to dd-mm.
func normalizeDate(value any) *string {
	s := normalizeString(value)
	if s == nil {
		return nil
	}
	if m := isoDatePattern.FindStringSubmatch(*s); m != nil {
		converted := m[2] + "-" + m[1]
		return &converted
	}
	return s
}
