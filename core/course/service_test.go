package course_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimuhq/elimu/core/course"
	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/storage/database/inmem"
)

func setup(t *testing.T) (*course.Service, context.Context) {
	t.Helper()
	return course.NewService(inmemdb.NewCourseRepository()), context.Background()
}

func createCourse(t *testing.T, svc *course.Service, ctx context.Context, price int64, published bool) course.Course {
	t.Helper()
	crs, err := svc.Create(ctx, course.NewCourse{
		Title:       "Intro to Go",
		TutorID:     "tutor-1",
		Price:       price,
		IsPublished: published,
	})
	require.NoError(t, err)
	return crs
}

func TestServiceEnrollFree(t *testing.T) {
	t.Run("enrolls with the free marker", func(t *testing.T) {
		svc, ctx := setup(t)
		crs := createCourse(t, svc, ctx, 0, true)

		enr, err := svc.EnrollFree(ctx, "student-1", crs.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.MethodFree, enr.Method)
		assert.Equal(t, payment.FreeTransactionID, enr.TransactionID)
		assert.Equal(t, int64(0), enr.Amount)
	})

	t.Run("unpublished course", func(t *testing.T) {
		svc, ctx := setup(t)
		crs := createCourse(t, svc, ctx, 0, false)

		_, err := svc.EnrollFree(ctx, "student-1", crs.ID)
		assert.Equal(t, course.ErrUnpublished, err)
	})

	t.Run("paid course requires payment", func(t *testing.T) {
		svc, ctx := setup(t)
		crs := createCourse(t, svc, ctx, 1500, true)

		_, err := svc.EnrollFree(ctx, "student-1", crs.ID)
		assert.Equal(t, course.ErrNotFree, err)
	})

	t.Run("double enrollment", func(t *testing.T) {
		svc, ctx := setup(t)
		crs := createCourse(t, svc, ctx, 0, true)

		_, err := svc.EnrollFree(ctx, "student-1", crs.ID)
		require.NoError(t, err)
		_, err = svc.EnrollFree(ctx, "student-1", crs.ID)
		assert.Equal(t, course.ErrAlreadyEnrolled, err)
	})

	t.Run("unknown course", func(t *testing.T) {
		svc, ctx := setup(t)

		_, err := svc.EnrollFree(ctx, "student-1", "nope")
		assert.Equal(t, course.ErrNotFound, err)
	})
}

func TestServiceApplySettlement(t *testing.T) {
	rec := payment.SettlementRecord{
		Kind:          payment.ContextEnrollment,
		StudentID:     "student-1",
		CourseID:      "crs-1",
		Amount:        1500,
		Method:        payment.MethodMpesa,
		TransactionID: "XYZ",
	}

	t.Run("creates the paid enrollment", func(t *testing.T) {
		svc, ctx := setup(t)

		require.NoError(t, svc.ApplySettlement(ctx, rec))

		enrs, err := svc.StudentEnrollments(ctx, "student-1")
		require.NoError(t, err)
		require.Len(t, enrs, 1)
		assert.Equal(t, int64(1500), enrs[0].Amount)
		assert.Equal(t, "XYZ", enrs[0].TransactionID)
	})

	t.Run("already enrolled", func(t *testing.T) {
		svc, ctx := setup(t)

		require.NoError(t, svc.ApplySettlement(ctx, rec))
		assert.Equal(t, course.ErrAlreadyEnrolled, svc.ApplySettlement(ctx, rec))
	})

	t.Run("wrong settlement kind", func(t *testing.T) {
		svc, ctx := setup(t)

		bad := rec
		bad.Kind = payment.ContextFees
		assert.Equal(t, course.ErrEnrollmentNotFor, svc.ApplySettlement(ctx, bad))
	})
}
