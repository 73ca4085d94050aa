package course

import (
	"time"

	"github.com/elimuhq/elimu/core"
)

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TutorID     string    `json:"tutor_id"`
	Price       int64     `json:"price"` // minor currency units; 0 = free
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (c *Course) IsFree() bool { return c.Price == 0 }

// Enrollment links a student to a course and the settlement that paid for it.
type Enrollment struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	CourseID      string    `json:"course_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	EnrolledAt    time.Time `json:"enrolled_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	TutorID     string `json:"tutor_id" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	IsPublished bool   `json:"is_published"`
}

func (nc *NewCourse) Validate() error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return core.Validate.Struct(nc)
}
