package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Field names accepted in a partial control-policy update
const (
	FieldDailyLimit           = "daily_limit"
	FieldPerTransactionLimit  = "per_transaction_limit"
	FieldContactlessEnabled   = "contactless_enabled"
	FieldInternationalEnabled = "international_enabled"
	FieldOnlineEnabled        = "online_enabled"
	FieldATMEnabled           = "atm_enabled"
	FieldAllowedCountries     = "allowed_countries"
	FieldEffectiveDate        = "effective_date"
	FieldExpiryDate           = "expiry_date"
)

// Optional carries a value that may or may not have been supplied
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a supplied Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// ControlPolicyUpdate is a partial update of a ControlPolicy.
// Unset fields keep their prior value. For the nullable fields a supplied nil
// clears the value (unlimited / open-ended).
type ControlPolicyUpdate struct {
	DailyLimit           Optional[*decimal.Decimal]
	PerTransactionLimit  Optional[*decimal.Decimal]
	ContactlessEnabled   Optional[bool]
	InternationalEnabled Optional[bool]
	OnlineEnabled        Optional[bool]
	ATMEnabled           Optional[bool]
	AllowedCountries     Optional[[]string]
	EffectiveDate        Optional[time.Time]
	ExpiryDate           Optional[*time.Time]
}

// ParseControlPolicyUpdate builds an update from loosely typed fields, as decoded
// from JSON or a protobuf Struct. Unknown keys and mistyped values fail with ErrInvalidField.
func ParseControlPolicyUpdate(fields map[string]any) (ControlPolicyUpdate, error) {
	var u ControlPolicyUpdate

	// Sorted so the first reported error is stable
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		raw := fields[key]
		var err error

		switch key {
		case FieldDailyLimit:
			u.DailyLimit.Value, err = parseLimit(key, raw)
			u.DailyLimit.Set = true
		case FieldPerTransactionLimit:
			u.PerTransactionLimit.Value, err = parseLimit(key, raw)
			u.PerTransactionLimit.Set = true
		case FieldContactlessEnabled:
			u.ContactlessEnabled.Value, err = parseBool(key, raw)
			u.ContactlessEnabled.Set = true
		case FieldInternationalEnabled:
			u.InternationalEnabled.Value, err = parseBool(key, raw)
			u.InternationalEnabled.Set = true
		case FieldOnlineEnabled:
			u.OnlineEnabled.Value, err = parseBool(key, raw)
			u.OnlineEnabled.Set = true
		case FieldATMEnabled:
			u.ATMEnabled.Value, err = parseBool(key, raw)
			u.ATMEnabled.Set = true
		case FieldAllowedCountries:
			u.AllowedCountries.Value, err = parseStrings(key, raw)
			u.AllowedCountries.Set = true
		case FieldEffectiveDate:
			var t *time.Time
			t, err = parseTime(key, raw)
			if err == nil && t == nil {
				err = fmt.Errorf("%w: %s cannot be null", ErrInvalidField, key)
			}
			if t != nil {
				u.EffectiveDate = Some(*t)
			}
		case FieldExpiryDate:
			u.ExpiryDate.Value, err = parseTime(key, raw)
			u.ExpiryDate.Set = true
		default:
			return ControlPolicyUpdate{}, fmt.Errorf("%w: unknown field %q", ErrInvalidField, key)
		}

		if err != nil {
			return ControlPolicyUpdate{}, err
		}
	}

	return u, nil
}

func parseLimit(key string, raw any) (*decimal.Decimal, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		d = v
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		d = parsed
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return nil, fmt.Errorf("%w: %s must be a decimal, got %T", ErrInvalidField, key, raw)
	}

	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidField, key)
	}
	if err := checkScale(key, d); err != nil {
		return nil, err
	}
	return &d, nil
}

func parseBool(key string, raw any) (bool, error) {
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidField, key, raw)
	}
	return b, nil
}

func parseStrings(key string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must contain strings, got %T", ErrInvalidField, key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of strings, got %T", ErrInvalidField, key, raw)
	}
}

func parseTime(key string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp, got %T", ErrInvalidField, key, raw)
	}
}
