package service

import (
	"context"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

type referenceReader interface {
	ListCourses(ctx context.Context, ids []string) ([]models.Course, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListClassrooms(ctx context.Context) ([]models.Classroom, error)
	ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error)
}

// referenceLoader fills every collection missing from inline with the stored one.
type referenceLoader struct {
	repo referenceReader
}

func (l referenceLoader) load(ctx context.Context, inline scheduler.ReferenceData, courseIDs []string) (scheduler.ReferenceData, error) {
	ref := inline
	if l.repo == nil {
		return ref, nil
	}
	var err error
	if len(ref.Courses) == 0 {
		if ref.Courses, err = l.repo.ListCourses(ctx, courseIDs); err != nil {
			return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
		}
	}
	if len(ref.Teachers) == 0 {
		if ref.Teachers, err = l.repo.ListTeachers(ctx); err != nil {
			return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
		}
	}
	if len(ref.Classrooms) == 0 {
		if ref.Classrooms, err = l.repo.ListClassrooms(ctx); err != nil {
			return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
		}
	}
	if len(ref.TimeSlots) == 0 {
		if ref.TimeSlots, err = l.repo.ListTimeSlots(ctx); err != nil {
			return ref, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
		}
	}
	return ref, nil
}
