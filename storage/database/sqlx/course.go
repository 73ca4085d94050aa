package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	TutorID     null.String `db:"tutor_id"`
	Price       int64       `db:"price"`
	IsPublished bool        `db:"is_published"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		TutorID:     r.TutorID.String,
		Price:       r.Price,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	q := `
INSERT INTO course (title, description, tutor_id, price, is_published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

	err := repo.db.GetContext(ctx, &crs.ID, q,
		crs.Title,
		null.NewString(crs.Description, crs.Description != ""),
		null.NewString(crs.TutorID, crs.TutorID != ""),
		crs.Price,
		crs.IsPublished,
		crs.CreatedAt.UTC(),
		crs.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM course ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

type enrollmentRow struct {
	ID            string    `db:"id"`
	StudentID     string    `db:"student_id"`
	CourseID      string    `db:"course_id"`
	Amount        int64     `db:"amount"`
	Method        string    `db:"method"`
	TransactionID string    `db:"transaction_id"`
	EnrolledAt    null.Time `db:"enrolled_at"`
}

func (r enrollmentRow) toEnrollment() course.Enrollment {
	return course.Enrollment{
		ID:            r.ID,
		StudentID:     r.StudentID,
		CourseID:      r.CourseID,
		Amount:        r.Amount,
		Method:        r.Method,
		TransactionID: r.TransactionID,
		EnrolledAt:    r.EnrolledAt.Time,
	}
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	q := `
INSERT INTO enrollment (student_id, course_id, amount, method, transaction_id, enrolled_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	err := repo.db.GetContext(ctx, &enr.ID, q,
		enr.StudentID, enr.CourseID, enr.Amount, enr.Method, enr.TransactionID, enr.EnrolledAt.UTC())
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (course.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM enrollment WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *courseRepository) QueryEnrollmentsByStudent(ctx context.Context, studentID string) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM enrollment WHERE student_id = $1 ORDER BY enrolled_at`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.toEnrollment())
	}
	return enrs, nil
}
