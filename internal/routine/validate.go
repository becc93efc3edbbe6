package routine

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by all input checks. validator instances cache struct
// metadata, so a single package-level instance is the intended usage.
var validate = validator.New(validator.WithRequiredStructEnabled())

// RoutineInput is the caller-supplied payload for creating a routine.
type RoutineInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Semester    string `json:"semester" validate:"max=100"`
	CreatedBy   string `json:"created_by"`
}

// SlotInput is the caller-supplied payload for adding or importing a slot.
type SlotInput struct {
	DayOfWeek  string `json:"day_of_week" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime  string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime    string `json:"end_time" validate:"required,datetime=15:04"`
	RoomNumber string `json:"room_number"`
	Section    string `json:"section"`
	CourseID   string `json:"course_id"`
	TeacherID  string `json:"teacher_id"`
}

// Validate checks the input and returns an error wrapping ErrValidation
// naming every offending field. Validation happens before any network call.
func (in *RoutineInput) Validate() error {
	return wrapValidation(validate.Struct(in))
}

// Validate checks the input and returns an error wrapping ErrValidation
// naming every offending field.
func (in *SlotInput) Validate() error {
	return wrapValidation(validate.Struct(in))
}

// wrapValidation converts validator errors into the package error taxonomy.
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
}
