package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tedxreg/registration/internal/domain"
)

var phoneRegex = regexp.MustCompile(`^\d{10}$`)

// Limits bound upload sizes in bytes.
type Limits struct {
	MaxPhotoBytes  int64
	MaxIDCardBytes int64
}

var DefaultLimits = Limits{MaxPhotoBytes: 5_000_000, MaxIDCardBytes: 3_000_000}

type Validator struct {
	v      *validator.Validate
	limits Limits
}

func New(limits Limits) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone10", validatePhone)
	_ = v.RegisterValidation("designation", validateDesignation)
	return &Validator{v: v, limits: limits}
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func validateDesignation(fl validator.FieldLevel) bool {
	_, err := domain.ParseDesignation(fl.Field().String())
	return err == nil
}

type designationStep struct {
	Designation string `json:"designation" validate:"required,designation"`
}

type detailsStep struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,phone10"`
}

type studentStep struct {
	USN string `json:"usn" validate:"required"`
}

// Designation checks the first registration step.
func (v *Validator) Designation(ctx context.Context, designation string) error {
	return v.Struct(ctx, designationStep{Designation: designation})
}

// Attendee checks every field required for the attendee's designation.
func (v *Validator) Attendee(ctx context.Context, a domain.Attendee) error {
	var fields []domain.FieldError
	collect := func(err error) {
		var ve domain.ValidationError
		if errors.As(err, &ve) {
			fields = append(fields, ve.Fields...)
		}
	}

	collect(v.Designation(ctx, string(a.Designation)))
	collect(v.Struct(ctx, detailsStep{Name: strings.TrimSpace(a.Name), Email: a.Email, Phone: a.Phone}))
	if fe := checkUpload("photo", "Photo", a.Photo, v.limits.MaxPhotoBytes); fe != nil {
		fields = append(fields, *fe)
	}

	switch {
	case a.Designation.RequiresStudentCredentials() && a.Student == nil:
		fields = append(fields,
			domain.FieldError{Field: "usn", Msg: "USN is required for students."},
			domain.FieldError{Field: "idCard", Msg: "Id card image is required"},
		)
	case a.Designation.RequiresStudentCredentials():
		collect(v.Struct(ctx, studentStep{USN: strings.TrimSpace(a.Student.USN)}))
		if fe := checkUpload("idCard", "Id card image", a.Student.IDCard, v.limits.MaxIDCardBytes); fe != nil {
			fields = append(fields, *fe)
		}
	case a.Student != nil:
		fields = append(fields, domain.FieldError{Field: "usn", Msg: "only students provide an institutional id"})
	}

	if len(fields) > 0 {
		return domain.ValidationError{Fields: fields}
	}
	return nil
}

func checkUpload(field, label string, u domain.Upload, limit int64) *domain.FieldError {
	if u.Empty() {
		return &domain.FieldError{Field: field, Msg: label + " is required"}
	}
	if limit > 0 && u.Size() > limit {
		return &domain.FieldError{Field: field, Msg: fmt.Sprintf("Max file size is %dMB.", limit/1_000_000)}
	}
	return nil
}

// Struct validates s against its `validate` tags and reports every failing field.
func (v *Validator) Struct(ctx context.Context, s any) error {
	err := v.v.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) {
		return err
	}
	out := domain.ValidationError{}
	for _, fe := range vErrors {
		out.Fields = append(out.Fields, domain.FieldError{Field: fe.Field(), Msg: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() == "usn" {
			return "USN is required for students."
		}
		return "Field is required"
	case "min":
		if fe.Field() == "name" {
			return "Name must be at least 2 characters."
		}
		return "Field is below minimum length"
	case "email":
		return "Invalid email address."
	case "phone10":
		return "Phone number must be 10 digits."
	case "designation":
		return "Select student, faculty or employee."
	case "gt", "gte":
		return "Value must be positive"
	default:
		return "Invalid format"
	}
}
