package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core/course"
)

type courseRepository struct {
	mu          sync.RWMutex
	courses     map[string]course.Course
	enrollments map[string]course.Enrollment // keyed by studentID+courseID
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository() *courseRepository {
	return &courseRepository{
		courses:     make(map[string]course.Course),
		enrollments: make(map[string]course.Enrollment),
	}
}

func enrollmentKey(studentID, courseID string) string { return studentID + "/" + courseID }

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	repo.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if crs, ok := repo.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.courses))
	for _, crs := range repo.courses {
		courses = append(courses, crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if enr.ID == "" {
		enr.ID = uuid.NewString()
	}
	key := enrollmentKey(enr.StudentID, enr.CourseID)
	if _, ok := repo.enrollments[key]; ok {
		return course.Enrollment{}, course.ErrAlreadyEnrolled
	}
	repo.enrollments[key] = enr
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (course.Enrollment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if enr, ok := repo.enrollments[enrollmentKey(studentID, courseID)]; ok {
		return enr, nil
	}
	return course.Enrollment{}, course.ErrNotFound
}

func (repo *courseRepository) QueryEnrollmentsByStudent(ctx context.Context, studentID string) ([]course.Enrollment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var enrs []course.Enrollment
	for _, enr := range repo.enrollments {
		if enr.StudentID == studentID {
			enrs = append(enrs, enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].EnrolledAt.Before(enrs[j].EnrolledAt) })
	return enrs, nil
}
