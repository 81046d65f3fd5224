package validations

import (
	"context"

	pkgError "github.com/Zer0phucks/devconsul/pkg/error"
	schedulingDomain "github.com/Zer0phucks/devconsul/scheduling/domain"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateSchedule(ctx context.Context, request schedulingDomain.CreateScheduleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ContentID, validation.Required),
		validation.Field(&request.ProjectID, validation.Required),
		validation.Field(&request.ScheduledFor, validation.Required),
		validation.Field(&request.Priority, validation.Min(0), validation.Max(100)),
		validation.Field(&request.MaxRetries, validation.Min(0)),
		validation.Field(&request.RetryDelaySeconds, validation.Min(0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if request.Recurrence != nil {
		if err := request.Recurrence.Validate(); err != nil {
			return pkgError.ValidationError(err.Error())
		}
	}

	return nil
}

func ValidateBatchRequest(ctx context.Context, request schedulingDomain.BatchRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.IDs, validation.Required, validation.Length(1, 0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
