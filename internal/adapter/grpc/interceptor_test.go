package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor(t *testing.T) {
	validToken := "test-token-123"
	interceptor := AuthInterceptor(validToken)

	tests := []struct {
		name           string
		ctx            context.Context
		handlerCalled  bool
		expectedCode   codes.Code
		expectedErrMsg string
	}{
		{
			name: "Valid Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", validToken),
			),
			handlerCalled: true,
			expectedCode:  codes.OK,
		},
		{
			name: "Valid Bearer Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "Bearer "+validToken),
			),
			handlerCalled: true,
			expectedCode:  codes.OK,
		},
		{
			name: "Invalid Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "wrong-token"),
			),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "invalid token",
		},
		{
			name:           "Missing Token",
			ctx:            context.Background(),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing metadata",
		},
		{
			name: "Missing Authorization Header",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("other-header", "value"),
			),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing authorization header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				handlerCalled = true
				return "success", nil
			}

			info := &grpc.UnaryServerInfo{
				FullMethod: "/cardguard.v1.CardGuardService/GetCard",
			}

			resp, err := interceptor(tt.ctx, "test-request", info, handler)

			assert.Equal(t, tt.handlerCalled, handlerCalled, "handler called status mismatch")

			if tt.expectedCode == codes.OK {
				assert.NoError(t, err)
				assert.Equal(t, "success", resp)
			} else {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok, "error should be a gRPC status")
				assert.Equal(t, tt.expectedCode, st.Code())
				assert.Contains(t, st.Message(), tt.expectedErrMsg)
			}
		})
	}
}

func TestLoggingInterceptor(t *testing.T) {
	tests := []struct {
		name          string
		handlerErr    error
		expectedLevel zapcore.Level
		expectedMsg   string
		expectedCode  string
	}{
		{
			name:          "OK",
			expectedLevel: zapcore.InfoLevel,
			expectedMsg:   "rpc completed",
			expectedCode:  "OK",
		},
		{
			name:          "Client Error",
			handlerErr:    status.Error(codes.InvalidArgument, "bad amount"),
			expectedLevel: zapcore.WarnLevel,
			expectedMsg:   "rpc rejected",
			expectedCode:  "InvalidArgument",
		},
		{
			name:          "Server Error",
			handlerErr:    status.Error(codes.Internal, "boom"),
			expectedLevel: zapcore.ErrorLevel,
			expectedMsg:   "rpc failed",
			expectedCode:  "Internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			interceptor := LoggingInterceptor(zap.New(core))

			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return "resp", tt.handlerErr
			}
			info := &grpc.UnaryServerInfo{FullMethod: "/cardguard.v1.CardGuardService/AttemptTransaction"}

			resp, err := interceptor(context.Background(), "req", info, handler)

			assert.Equal(t, "resp", resp)
			assert.Equal(t, tt.handlerErr, err)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expectedLevel, entries[0].Level)
			assert.Equal(t, tt.expectedMsg, entries[0].Message)

			ctxMap := entries[0].ContextMap()
			assert.Equal(t, "/cardguard.v1.CardGuardService/AttemptTransaction", ctxMap["method"])
			assert.Equal(t, tt.expectedCode, ctxMap["code"])
		})
	}
}
