package grpc

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/usecase/lifecycle"
	"github.com/simaogato/cardguard-backend/internal/usecase/transaction"
)

// fields wraps a decoded request Struct
type fields map[string]interface{}

func requestFields(req *structpb.Struct) fields {
	if req == nil {
		return fields{}
	}
	return fields(req.AsMap())
}

func (f fields) str(key string) string {
	s, _ := f[key].(string)
	return s
}

// optionalString is like str but rejects a present value of another type
func (f fields) optionalString(key string) (string, error) {
	switch v := f[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", key)
	}
}

func (f fields) optionalBool(key string) (bool, error) {
	switch v := f[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, status.Errorf(codes.InvalidArgument, "%s must be a boolean", key)
	}
}

func (f fields) nested(key string) fields {
	m, ok := f[key].(map[string]interface{})
	if !ok {
		return fields{}
	}
	return fields(m)
}

func (f fields) parseUUID(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(f.str(key))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return id, nil
}

// parseDecimal accepts a string (preferred, exact) or a number
func (f fields) parseDecimal(key string) (decimal.Decimal, error) {
	switch v := f[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
}

func (f fields) optionalDecimal(key string) (*decimal.Decimal, error) {
	if v, ok := f[key]; !ok || v == nil {
		return nil, nil
	}
	d, err := f.parseDecimal(key)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (f fields) number(key string) (float64, bool) {
	v, ok := f[key].(float64)
	return v, ok
}

// optionalNumber is nil when key is absent and fails when it holds a non-number
func (f fields) optionalNumber(key string) (*float64, error) {
	if v, ok := f[key]; !ok || v == nil {
		return nil, nil
	}
	v, ok := f.number(key)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	return &v, nil
}

// integer accepts whole numbers within the int32 range
func (f fields) integer(key string, fallback int) (int, error) {
	v, err := f.optionalNumber(key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return fallback, nil
	}
	if *v != math.Trunc(*v) || *v < math.MinInt32 || *v > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(*v), nil
}

// timestamp parses an RFC 3339 value; absent means the zero time
func (f fields) timestamp(key string) (time.Time, error) {
	s := f.str(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return t, nil
}

// date parses YYYY-MM-DD or RFC 3339
func (f fields) date(key string) (time.Time, error) {
	s := f.str(key)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid %s format: expected YYYY-MM-DD", key)
	}
	return t, nil
}

func (f fields) draft() (domain.TransactionDraft, error) {
	amount, err := f.parseDecimal("amount")
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	date, err := f.timestamp("date")
	if err != nil {
		return domain.TransactionDraft{}, err
	}

	text := make(map[string]string, 3)
	for _, key := range []string{"type", "channel", "currency"} {
		if text[key], err = f.optionalString(key); err != nil {
			return domain.TransactionDraft{}, err
		}
	}

	fraudScore, err := f.optionalNumber("fraud_score")
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	if fraudScore == nil {
		fraudScore = new(float64)
	}

	merchant := f.nested("merchant")
	location := f.nested("location")

	latitude, err := location.optionalNumber("latitude")
	if err != nil {
		return domain.TransactionDraft{}, err
	}
	longitude, err := location.optionalNumber("longitude")
	if err != nil {
		return domain.TransactionDraft{}, err
	}

	return domain.TransactionDraft{
		Type:     domain.TransactionType(text["type"]),
		Channel:  domain.Channel(text["channel"]),
		Amount:   amount,
		Currency: text["currency"],
		Merchant: domain.Merchant{
			Name:         merchant.str("name"),
			Category:     merchant.str("category"),
			CategoryCode: merchant.str("category_code"),
			ID:           merchant.str("id"),
		},
		Location: domain.Location{
			City:      location.str("city"),
			State:     location.str("state"),
			Country:   location.str("country"),
			Latitude:  latitude,
			Longitude: longitude,
		},
		FraudScore:  *fraudScore,
		Description: f.str("description"),
		Category:    f.str("category"),
		Date:        date,
	}, nil
}

// response converts m into a Struct. Values must already be Struct-compatible.
func response(m map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func optionalDecimalString(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func stringList[T ~string](values []T) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

func cardToMap(card *domain.Card, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                      card.ID.String(),
		"customer_id":             card.CustomerID.String(),
		"masked_number":           card.MaskedNumber,
		"last_four":               card.LastFour(),
		"card_type":               string(card.CardType),
		"brand":                   card.Brand,
		"status":                  string(card.Status),
		"effective_status":        string(card.EffectiveStatus(now)),
		"can_transact":            card.CanTransact(now),
		"is_expired":              card.IsExpired(now),
		"expiry_date":             card.ExpiryDate.Format(time.DateOnly),
		"credit_limit":            optionalDecimalString(card.CreditLimit),
		"issue_date":              formatTime(card.IssueDate),
		"updated_at":              formatTime(card.UpdatedAt),
		"last_transaction_amount": optionalDecimalString(card.LastTransactionAmount),
		"last_transaction_date":   optionalTime(card.LastTransactionDate),
	}
}

func policyToMap(policy *domain.ControlPolicy, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                             policy.ID.String(),
		"card_id":                        policy.CardID.String(),
		"home_country":                   policy.HomeCountry,
		domain.FieldDailyLimit:           optionalDecimalString(policy.DailyLimit),
		domain.FieldPerTransactionLimit:  optionalDecimalString(policy.PerTransactionLimit),
		domain.FieldContactlessEnabled:   policy.ContactlessEnabled,
		domain.FieldInternationalEnabled: policy.InternationalEnabled,
		domain.FieldOnlineEnabled:        policy.OnlineEnabled,
		domain.FieldATMEnabled:           policy.ATMEnabled,
		domain.FieldAllowedCountries:     stringList(policy.AllowedCountries),
		domain.FieldEffectiveDate:        formatTime(policy.EffectiveDate),
		domain.FieldExpiryDate:           optionalTime(policy.ExpiryDate),
		"is_effective":                   policy.IsEffective(now),
		"updated_at":                     formatTime(policy.UpdatedAt),
	}
}

func transactionToMap(tx *domain.Transaction) map[string]interface{} {
	merchant := tx.Merchant()
	location := tx.Location()

	var disputeID interface{}
	if tx.IsDisputed() {
		disputeID = tx.DisputeID()
	}

	return map[string]interface{}{
		"id":          string(tx.ID),
		"card_id":     tx.CardID.String(),
		"customer_id": tx.CustomerID.String(),
		"date":        formatTime(tx.Date),
		"status":      string(tx.Status),
		"type":        string(tx.Type),
		"channel":     string(tx.Channel),
		"amount":      tx.Amount().String(),
		"currency":    tx.Currency(),
		"merchant": map[string]interface{}{
			"name":          merchant.Name,
			"category":      merchant.Category,
			"category_code": merchant.CategoryCode,
			"id":            merchant.ID,
		},
		"location": map[string]interface{}{
			"city":      location.City,
			"state":     location.State,
			"country":   location.Country,
			"latitude":  optionalFloat(location.Latitude),
			"longitude": optionalFloat(location.Longitude),
		},
		"fraud_score":     tx.FraudScore(),
		"is_disputed":     tx.IsDisputed(),
		"dispute_id":      disputeID,
		"description":     tx.Description,
		"category":        tx.Category,
		"decline_reasons": stringList(tx.DeclineReasons),
		"updated_at":      formatTime(tx.UpdatedAt),
	}
}

func viewToMap(v *transaction.View) map[string]interface{} {
	m := transactionToMap(v.Transaction)
	m["risk_tier"] = string(v.RiskTier)
	m["is_recent"] = v.IsRecent
	m["can_be_disputed"] = v.CanBeDisputed
	return m
}

func recordToMap(r domain.TransitionRecord) map[string]interface{} {
	return map[string]interface{}{
		"kind":            string(r.Kind),
		"entity_id":       r.EntityID,
		"previous_status": r.PreviousStatus,
		"new_status":      r.NewStatus,
		"reason":          r.Reason,
		"timestamp":       formatTime(r.Timestamp),
	}
}

func outcomeToMap(o *lifecycle.Outcome) map[string]interface{} {
	transitions := make([]interface{}, 0, len(o.Transitions))
	for _, r := range o.Transitions {
		transitions = append(transitions, recordToMap(r))
	}
	return map[string]interface{}{
		"decision":    string(o.Decision),
		"violations":  stringList(o.Violations),
		"transaction": transactionToMap(o.Transaction),
		"transitions": transitions,
	}
}

// requireString fails with InvalidArgument when key is empty
func (f fields) requireString(key string) (string, error) {
	s := f.str(key)
	if s == "" {
		return "", status.Error(codes.InvalidArgument, fmt.Sprintf("%s is required", key))
	}
	return s, nil
}
