package course

import (
	"context"
	"errors"
	"time"

	"github.com/elimuhq/elimu/core/payment"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrAlreadyEnrolled  = errors.New("student is already enrolled in this course")
	ErrNotFree          = errors.New("this course is not free, payment is required")
	ErrUnpublished      = errors.New("this course is not open for enrollment")
	ErrEnrollmentNotFor = errors.New("settlement does not target an enrollment")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		QueryAllCourses(ctx context.Context) ([]Course, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		QueryEnrollmentsByStudent(ctx context.Context, studentID string) ([]Enrollment, error)
	}

	Service struct {
		repo Repository
	}
)

var _ payment.Target = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Title:       nc.Title,
		Description: nc.Description,
		TutorID:     nc.TutorID,
		Price:       nc.Price,
		IsPublished: nc.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryAllCourses(ctx)
}

func (svc *Service) StudentEnrollments(ctx context.Context, studentID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByStudent(ctx, studentID)
}

// EnrollFree enrolls a student in a zero-cost course. Paid courses go through
// the payment pipeline instead; its settlement lands in ApplySettlement.
func (svc *Service) EnrollFree(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	crs, err := svc.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !crs.IsPublished {
		return Enrollment{}, ErrUnpublished
	}
	if !crs.IsFree() {
		return Enrollment{}, ErrNotFree
	}
	if _, err = svc.repo.GetEnrollment(ctx, studentID, courseID); err == nil {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if err != ErrNotFound {
		return Enrollment{}, err
	}

	return svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:     studentID,
		CourseID:      courseID,
		Method:        payment.MethodFree,
		TransactionID: payment.FreeTransactionID,
		EnrolledAt:    time.Now().UTC(),
	})
}

// ApplySettlement records the enrollment a confirmed payment paid for.
func (svc *Service) ApplySettlement(ctx context.Context, rec payment.SettlementRecord) error {
	if rec.Kind != payment.ContextEnrollment {
		return ErrEnrollmentNotFor
	}
	if _, err := svc.repo.GetEnrollment(ctx, rec.StudentID, rec.CourseID); err == nil {
		return ErrAlreadyEnrolled
	} else if err != ErrNotFound {
		return err
	}

	_, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:     rec.StudentID,
		CourseID:      rec.CourseID,
		Amount:        rec.Amount,
		Method:        rec.Method,
		TransactionID: rec.TransactionID,
		EnrolledAt:    rec.RecordedAt,
	})
	return err
}
