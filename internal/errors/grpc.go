package errors

import (
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ClassifyGRPC converts a gRPC error into an EngineError, mapping status
// codes to severities and extracting rich error details when present.
func ClassifyGRPC(err error) *EngineError {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return Classify(err)
	}

	details := fmt.Sprintf("gRPC: %s - %s", st.Code(), st.Message())
	if extra := formatStatusDetails(st); extra != "" {
		details += "\n" + extra
	}

	out := &EngineError{
		Err:      err,
		Severity: SeverityError,
		Code:     st.Code().String(),
		Message:  st.Message(),
		Details:  details,
	}

	switch st.Code() {
	case codes.Canceled:
		out.Severity = SeverityInfo
		out.Code = CodeCancelled
		out.Message = "the call was cancelled"
	case codes.DeadlineExceeded:
		out.Code = CodeTimeout
		out.Message = "the server took too long to respond"
	case codes.Unavailable:
		out.Code = CodeConnectFailed
		out.Message = "the server is not responding"
	case codes.Unimplemented:
		out.Severity = SeverityWarning
		out.Message = "this method is not implemented on the server"
	case codes.DataLoss:
		out.Severity = SeverityFatal
	}

	return out
}

// formatStatusDetails flattens errdetails payloads into readable lines.
func formatStatusDetails(st *status.Status) string {
	var lines []string
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.BadRequest:
			for _, fv := range d.GetFieldViolations() {
				lines = append(lines, fmt.Sprintf("field %s: %s", fv.GetField(), fv.GetDescription()))
			}
		case *errdetails.ErrorInfo:
			line := "reason: " + d.GetReason()
			if d.GetDomain() != "" {
				line += " (" + d.GetDomain() + ")"
			}
			lines = append(lines, line)
		case *errdetails.RetryInfo:
			if delay := d.GetRetryDelay(); delay != nil {
				lines = append(lines, fmt.Sprintf("retry after: %v", delay.AsDuration()))
			}
		case *errdetails.DebugInfo:
			if d.GetDetail() != "" {
				lines = append(lines, "debug: "+d.GetDetail())
			}
		case *errdetails.RequestInfo:
			lines = append(lines, "request id: "+d.GetRequestId())
		default:
			lines = append(lines, fmt.Sprintf("detail: %v", detail))
		}
	}
	return strings.Join(lines, "\n")
}
