package grpc

import (
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "retail.ordering"

const (
	reasonInsufficientStock  = "insufficient_stock"
	reasonAllocationConflict = "allocation_conflict"
	reasonChangeInFlight     = "change_in_flight"
)

// toStatus maps a domain error onto a gRPC status. Precondition failures
// carry an ErrorInfo reason so the client can restore the sentinel.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code, reason := codes.Internal, ""
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrIdempotencyRequired):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, domain.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		code, reason = codes.FailedPrecondition, reasonInsufficientStock
	case errors.Is(err, domain.ErrAllocationConflict):
		code, reason = codes.FailedPrecondition, reasonAllocationConflict
	case errors.Is(err, domain.ErrChangeInFlight):
		code, reason = codes.Aborted, reasonChangeInFlight
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrIdempotencyConflict):
		code = codes.Aborted
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrDependencyUnavailable):
		code = codes.Unavailable
	}
	st := status.New(code, err.Error())
	if reason == "" {
		return st.Err()
	}
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// fromStatus turns a call error back into a domain error. Anything that
// leaves the outcome of the call unknown becomes ErrNetworkFailure.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
	msg := st.Message()
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, msg)
	case codes.NotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case codes.FailedPrecondition:
		switch statusReason(st) {
		case reasonInsufficientStock:
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, msg)
		case reasonAllocationConflict:
			return fmt.Errorf("%w: %s", domain.ErrAllocationConflict, msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	case codes.Aborted:
		if statusReason(st) == reasonChangeInFlight {
			return fmt.Errorf("%w: %s", domain.ErrChangeInFlight, msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	default:
		return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
}

func statusReason(st *status.Status) string {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return info.GetReason()
		}
	}
	return ""
}
