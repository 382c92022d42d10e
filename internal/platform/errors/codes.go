// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

// Kind groups codes into the caller-facing failure taxonomy.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidTransition Kind = "invalid_transition"
	KindState             Kind = "state"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Generic validation
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeFilterInvalid    Code = "FILTER_INVALID"
	CodePageTokenInvalid Code = "PAGE_TOKEN_INVALID"

	// Organization errors
	CodeSectorNameEmpty         Code = "SECTOR_NAME_EMPTY"
	CodeSectorInUse             Code = "SECTOR_IN_USE"
	CodeTeamNameEmpty           Code = "TEAM_NAME_EMPTY"
	CodeTeamSectorMissing       Code = "TEAM_SECTOR_MISSING"
	CodeTeamEvidenceLinkInvalid Code = "TEAM_EVIDENCE_LINK_INVALID"
	CodeTeamInactive            Code = "TEAM_INACTIVE"
	CodeGrantTargetMissing      Code = "GRANT_TARGET_MISSING"
	CodeGrantUserMissing        Code = "GRANT_USER_MISSING"

	// Period errors
	CodePeriodNameEmpty      Code = "PERIOD_NAME_EMPTY"
	CodePeriodRangeInvalid   Code = "PERIOD_RANGE_INVALID"
	CodePeriodCadenceInvalid Code = "PERIOD_CADENCE_INVALID"
	CodePeriodTooLong        Code = "PERIOD_TOO_LONG"
	CodeWindowPeriodMismatch Code = "WINDOW_PERIOD_MISMATCH"

	// Goal errors
	CodeGoalNameEmpty               Code = "GOAL_NAME_EMPTY"
	CodeGoalTeamMissing             Code = "GOAL_TEAM_MISSING"
	CodeGoalPeriodMissing           Code = "GOAL_PERIOD_MISSING"
	CodeGoalMetricInvalid           Code = "GOAL_METRIC_INVALID"
	CodeGoalWeightInvalid           Code = "GOAL_WEIGHT_INVALID"
	CodeGoalStatusInvalid           Code = "GOAL_STATUS_INVALID"
	CodeGoalInvalidStatusTransition Code = "GOAL_INVALID_STATUS_TRANSITION"
	CodeGoalNotActive               Code = "GOAL_NOT_ACTIVE"

	// Result errors
	CodeResultValueEmpty           Code = "RESULT_VALUE_EMPTY"
	CodeResultObservationEmpty     Code = "RESULT_OBSERVATION_EMPTY"
	CodeResultEvidenceUnconfirmed  Code = "RESULT_EVIDENCE_UNCONFIRMED"
	CodeResultRejectionReasonEmpty Code = "RESULT_REJECTION_REASON_EMPTY"
	CodeResultEvidenceFileInvalid  Code = "RESULT_EVIDENCE_FILE_INVALID"
	CodeResultAlreadyProcessed     Code = "RESULT_ALREADY_PROCESSED"
	CodeResultFinalized            Code = "RESULT_FINALIZED"
	CodeResultNotFinalized         Code = "RESULT_NOT_FINALIZED"
	CodeResultReopenDisabled       Code = "RESULT_REOPEN_DISABLED"

	// Access errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// Kind maps domain codes to the failure taxonomy.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidationFailed,
		CodeFilterInvalid,
		CodePageTokenInvalid,
		CodeSectorNameEmpty,
		CodeTeamNameEmpty,
		CodeTeamSectorMissing,
		CodeTeamEvidenceLinkInvalid,
		CodeGrantTargetMissing,
		CodeGrantUserMissing,
		CodePeriodNameEmpty,
		CodePeriodRangeInvalid,
		CodePeriodCadenceInvalid,
		CodePeriodTooLong,
		CodeWindowPeriodMismatch,
		CodeGoalNameEmpty,
		CodeGoalTeamMissing,
		CodeGoalPeriodMissing,
		CodeGoalMetricInvalid,
		CodeGoalWeightInvalid,
		CodeGoalStatusInvalid,
		CodeResultValueEmpty,
		CodeResultObservationEmpty,
		CodeResultEvidenceUnconfirmed,
		CodeResultRejectionReasonEmpty,
		CodeResultEvidenceFileInvalid:
		return KindValidation

	case CodeGoalInvalidStatusTransition:
		return KindInvalidTransition

	case CodeResultAlreadyProcessed,
		CodeResultFinalized,
		CodeResultNotFinalized,
		CodeResultReopenDisabled,
		CodeSectorInUse,
		CodeTeamInactive,
		CodeGoalNotActive,
		CodeAlreadyExists:
		return KindState

	case CodePermissionDenied:
		return KindAuthorization

	case CodeUnauthenticated:
		return KindUnauthenticated

	case CodeNotFound:
		return KindNotFound

	default:
		return KindInternal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidTransition, KindState:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
