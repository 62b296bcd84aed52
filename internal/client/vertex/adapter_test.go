package vertexclient

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/GregMSThompson/finance-sync/internal/errs"
)

func TestToExternalErrorResourceExhausted(t *testing.T) {
	st, err := status.New(codes.ResourceExhausted, "Quota exceeded").WithDetails(
		&errdetails.QuotaFailure{Violations: []*errdetails.QuotaFailure_Violation{{
			Subject:     "project:123",
			Description: "GenerateRequestsPerDayPerProjectPerModel",
		}}},
		&errdetails.RetryInfo{RetryDelay: durationpb.New(37 * time.Second)},
	)
	if err != nil {
		t.Fatalf("WithDetails error: %v", err)
	}
	grpcErr := st.Err()
	if _, ok := apierror.FromError(grpcErr); !ok {
		t.Fatal("expected grpc error to parse as APIError")
	}

	out := toExternalError(grpcErr)

	var ext *errs.ExternalServiceError
	if !errors.As(out, &ext) {
		t.Fatalf("expected ExternalServiceError, got %T", out)
	}
	if ext.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", ext.StatusCode)
	}
	if ext.RetryAfter != 37*time.Second {
		t.Fatalf("retry after = %s", ext.RetryAfter)
	}
	if !strings.Contains(ext.Message, "PerDay") {
		t.Fatalf("quota violation missing from message: %q", ext.Message)
	}
	if ext.Transient {
		t.Fatal("quota exhaustion should not be transient")
	}
}

func TestToExternalErrorPlainError(t *testing.T) {
	out := toExternalError(errors.New("dial tcp: refused"))

	var ext *errs.ExternalServiceError
	if !errors.As(out, &ext) {
		t.Fatalf("expected ExternalServiceError, got %T", out)
	}
	if ext.StatusCode != 0 || ext.Service != "vertex" {
		t.Fatalf("unexpected error: %+v", ext)
	}
}
