package domain

import (
	"fmt"
	"time"
)

type Designation string

const (
	DesignationStudent  Designation = "student"
	DesignationFaculty  Designation = "faculty"
	DesignationEmployee Designation = "employee"
)

var Designations = []Designation{DesignationStudent, DesignationFaculty, DesignationEmployee}

func ParseDesignation(s string) (Designation, error) {
	for _, d := range Designations {
		if string(d) == s {
			return d, nil
		}
	}
	return "", NewValidationError("designation", fmt.Sprintf("must be one of student, faculty, employee; got %q", s))
}

// RequiresStudentCredentials reports whether USN and id card are mandatory.
func (d Designation) RequiresStudentCredentials() bool {
	return d == DesignationStudent
}

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u Upload) Size() int64 { return int64(len(u.Data)) }

func (u Upload) Empty() bool { return len(u.Data) == 0 }

type StudentCredentials struct {
	USN    string
	IDCard Upload
}

// Attendee holds the registrant. Student is set iff Designation is student.
type Attendee struct {
	Designation Designation
	Name        string
	Email       string
	Phone       string
	Photo       Upload
	Student     *StudentCredentials
}

type Registration struct {
	ID              string
	OrderID         string
	PaymentID       string
	Amount          int64
	CouponCode      string
	// CouponContested marks a paid discount whose coupon was claimed by another order first.
	CouponContested bool
	Attendee        Attendee
	CreatedAt       time.Time
}
