package vertexclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
)

type Adapter struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewAdapter(ctx context.Context, log *slog.Logger, projectID, region, model string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client: client,
		model:  model,
		log:    log,
	}, nil
}

func (a *Adapter) Close() error {
	err := a.client.Close()
	if err != nil && a.log != nil {
		a.log.Error("vertex adapter close failed", "error", err)
	}
	return err
}

func (a *Adapter) GenerateContent(ctx context.Context, req dto.VertexGenerateRequest) (dto.VertexGenerateResponse, error) {
	out := dto.VertexGenerateResponse{}

	modelName := req.Model
	if modelName == "" {
		modelName = a.model
	}
	if modelName == "" {
		return out, errs.NewValidationError("vertex model is required")
	}
	if req.UserMessage == "" {
		return out, errs.NewValidationError("vertex generate request has no content")
	}

	model := a.client.GenerativeModel(modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.MaxOutputTokens != nil {
		model.SetMaxOutputTokens(*req.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserMessage))
	if err != nil {
		return out, toExternalError(err)
	}

	out.Raw = resp
	out.Text = responseText(resp)
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return sb.String()
}

// toExternalError flattens a Vertex API error into an ExternalServiceError.
// ResourceExhausted becomes HTTP 429; RetryInfo and QuotaFailure details are
// carried as RetryAfter and in the message so quota ids such as
// "GenerateRequestsPerDayPerProjectPerModel" stay visible.
func toExternalError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.NewExternalServiceError("vertex", err.Error(), 0, true, err)
	}

	ae, ok := apierror.FromError(err)
	if !ok {
		return errs.NewExternalServiceError("vertex", err.Error(), 0, false, err)
	}

	status := ae.HTTPCode()
	code := ae.GRPCStatus().Code()
	if status <= 0 {
		status = httpStatus(code)
	}

	parts := []string{ae.Error()}
	if reason := ae.Reason(); reason != "" {
		parts = append(parts, "reason="+reason)
	}

	details := ae.Details()
	if qf := details.QuotaFailure; qf != nil {
		for _, v := range qf.GetViolations() {
			parts = append(parts, fmt.Sprintf("quota %s: %s", v.GetSubject(), v.GetDescription()))
		}
	}
	if info := details.ErrorInfo; info != nil {
		for k, v := range info.GetMetadata() {
			parts = append(parts, k+"="+v)
		}
	}

	out := errs.NewExternalServiceError("vertex", strings.Join(parts, "; "), status, isTransient(code), err)
	if ri := details.RetryInfo; ri != nil && ri.GetRetryDelay() != nil {
		out.RetryAfter = ri.GetRetryDelay().AsDuration()
	}
	return out
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isTransient(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return true
	}
	return false
}
