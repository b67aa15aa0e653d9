package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/usecase/authorization"
	"github.com/simaogato/cardguard-backend/internal/usecase/card"
	"github.com/simaogato/cardguard-backend/internal/usecase/transaction"
)

const defaultPageSize = 50

// Server implements the CardGuardService gRPC server
type Server struct {
	AuthorizationService *authorization.AuthorizationService
	CardService          *card.CardService
	TransactionService   *transaction.TransactionService
	Clock                func() time.Time
}

var _ CardGuardServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	authorizationService *authorization.AuthorizationService,
	cardService *card.CardService,
	transactionService *transaction.TransactionService,
) *Server {
	return &Server{
		AuthorizationService: authorizationService,
		CardService:          cardService,
		TransactionService:   transactionService,
		Clock:                time.Now,
	}
}

// IssueCard handles the IssueCard RPC
func (s *Server) IssueCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	customerID, err := f.parseUUID("customer_id")
	if err != nil {
		return nil, err
	}
	cardNumber, err := f.requireString("card_number")
	if err != nil {
		return nil, err
	}
	expiry, err := f.date("expiry_date")
	if err != nil {
		return nil, err
	}
	creditLimit, err := f.optionalDecimal("credit_limit")
	if err != nil {
		return nil, err
	}
	activate, err := f.optionalBool("activate")
	if err != nil {
		return nil, err
	}

	input := card.IssueCardInput{
		CustomerID:  customerID,
		CardNumber:  cardNumber,
		CardType:    domain.CardType(f.str("card_type")),
		Brand:       f.str("brand"),
		ExpiryDate:  expiry,
		CreditLimit: creditLimit,
		HomeCountry: f.str("home_country"),
		Activate:    activate,
	}

	issued, policy, err := s.CardService.IssueCard(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	now := s.Clock()
	return response(map[string]interface{}{
		"card":     cardToMap(issued, now),
		"controls": policyToMap(policy, now),
	})
}

// GetCard handles the GetCard RPC
func (s *Server) GetCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cardID, err := requestFields(req).parseUUID("card_id")
	if err != nil {
		return nil, err
	}

	c, policy, err := s.CardService.GetCard(ctx, cardID)
	if err != nil {
		return nil, mapError(err)
	}

	now := s.Clock()
	return response(map[string]interface{}{
		"card":     cardToMap(c, now),
		"controls": policyToMap(policy, now),
	})
}

// TransitionCardStatus handles the TransitionCardStatus RPC
func (s *Server) TransitionCardStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	cardID, err := f.parseUUID("card_id")
	if err != nil {
		return nil, err
	}
	newStatus, err := f.requireString("status")
	if err != nil {
		return nil, err
	}

	record, err := s.CardService.TransitionStatus(ctx, cardID, domain.CardStatus(newStatus), f.str("reason"))
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"transition": recordToMap(*record),
	})
}

// UpdateControls handles the UpdateControls RPC.
// The "controls" object is passed through as a partial update.
func (s *Server) UpdateControls(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	cardID, err := f.parseUUID("card_id")
	if err != nil {
		return nil, err
	}

	controls, ok := f["controls"].(map[string]interface{})
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "controls must be an object")
	}

	policy, err := s.CardService.UpdateControls(ctx, cardID, controls)
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"controls": policyToMap(policy, s.Clock()),
	})
}

// AttemptTransaction handles the AttemptTransaction RPC
func (s *Server) AttemptTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	cardID, err := f.parseUUID("card_id")
	if err != nil {
		return nil, err
	}
	draft, err := f.draft()
	if err != nil {
		return nil, err
	}

	outcome, err := s.AuthorizationService.Authorize(ctx, authorization.AuthorizeInput{
		CardID: cardID,
		Draft:  draft,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return response(outcomeToMap(outcome))
}

// GetTransaction handles the GetTransaction RPC
func (s *Server) GetTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestFields(req).requireString("transaction_id")
	if err != nil {
		return nil, err
	}

	view, err := s.TransactionService.Get(ctx, domain.TransactionID(id))
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"transaction": viewToMap(view),
	})
}

// ListTransactions handles the ListTransactions RPC
func (s *Server) ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	cardID, err := f.parseUUID("card_id")
	if err != nil {
		return nil, err
	}

	limit, err := f.integer("limit", defaultPageSize)
	if err != nil {
		return nil, err
	}
	offset, err := f.integer("offset", 0)
	if err != nil {
		return nil, err
	}

	views, err := s.TransactionService.ListByCard(ctx, cardID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]interface{}, 0, len(views))
	for _, v := range views {
		items = append(items, viewToMap(v))
	}

	return response(map[string]interface{}{
		"transactions": items,
	})
}

// OpenDispute handles the OpenDispute RPC
func (s *Server) OpenDispute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestFields(req).requireString("transaction_id")
	if err != nil {
		return nil, err
	}

	tx, err := s.TransactionService.OpenDispute(ctx, domain.TransactionID(id))
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"dispute_id":  tx.DisputeID(),
		"transaction": transactionToMap(tx),
	})
}

// ReverseTransaction handles the ReverseTransaction RPC
func (s *Server) ReverseTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	id, err := f.requireString("transaction_id")
	if err != nil {
		return nil, err
	}

	record, err := s.TransactionService.Reverse(ctx, domain.TransactionID(id), f.str("reason"))
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"transition": recordToMap(*record),
	})
}

// UpdateFraudScore handles the UpdateFraudScore RPC
func (s *Server) UpdateFraudScore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := requestFields(req)

	id, err := f.requireString("transaction_id")
	if err != nil {
		return nil, err
	}
	score, ok := f.number("fraud_score")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "fraud_score must be a number")
	}

	view, err := s.TransactionService.UpdateFraudScore(ctx, domain.TransactionID(id), score)
	if err != nil {
		return nil, mapError(err)
	}

	return response(map[string]interface{}{
		"transaction": viewToMap(view),
	})
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidField):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrAlreadyDisputed):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrImmutableFieldViolation),
		errors.Is(err, domain.ErrNotDisputable),
		errors.Is(err, domain.ErrPolicyMismatch):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrLockNotAcquired):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}

	return status.Errorf(code, "%s", err.Error())
}
