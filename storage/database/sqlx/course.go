package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sikshyahq/sikshya/core"
	"github.com/sikshyahq/sikshya/core/course"
)

type courseRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Subject     string      `db:"subject"`
	Description string      `db:"description"`
	TeacherID   null.String `db:"teacher_id"`
	Price       float64     `db:"price"`
	IsPublished bool        `db:"is_published"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Subject:     r.Subject,
		Description: r.Description,
		TeacherID:   r.TeacherID.String,
		Price:       r.Price,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newCourseRow(crs course.Course) courseRow {
	return courseRow{
		ID:          crs.ID,
		Title:       crs.Title,
		Subject:     crs.Subject,
		Description: crs.Description,
		TeacherID:   null.NewString(crs.TeacherID, crs.TeacherID != ""),
		Price:       crs.Price,
		IsPublished: crs.IsPublished,
		CreatedAt:   crs.CreatedAt.UTC(),
		UpdatedAt:   crs.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	row := newCourseRow(crs)
	q := `
	INSERT INTO course (id, title, subject, description, teacher_id, price, is_published, created_at, updated_at)
	VALUES (:id, :title, :subject, :description, :teacher_id, :price, :is_published, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course by id")
	}
	return row.course(), nil
}

func (repo courseRepository) FilterCourses(ctx context.Context, filter course.QueryFilter, ordering ...core.DBOrdering) ([]course.Course, error) {
	q := `SELECT * FROM course`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(title ILIKE "+p+" OR subject ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if filter.Subject != "" {
		conds = append(conds, "LOWER(subject) = LOWER("+arg(filter.Subject)+")")
	}
	if filter.TeacherID != "" {
		conds = append(conds, "teacher_id = "+arg(filter.TeacherID))
	}
	if filter.IsPublished != nil {
		conds = append(conds, "is_published = "+arg(*filter.IsPublished))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderByClause(ordering, "created_at DESC")

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isPublished *bool, price *float64) (course.Course, error) {
	orig, err := repo.GetCourseByID(ctx, crs.ID)
	if err != nil {
		return course.Course{}, err
	}

	if crs.Title != "" {
		orig.Title = crs.Title
	}
	if crs.Subject != "" {
		orig.Subject = crs.Subject
	}
	if crs.Description != "" {
		orig.Description = crs.Description
	}
	if crs.TeacherID != "" {
		orig.TeacherID = crs.TeacherID
	}
	if isPublished != nil {
		orig.IsPublished = *isPublished
	}
	if price != nil {
		orig.Price = *price
	}
	orig.UpdatedAt = time.Now().UTC()

	row := newCourseRow(orig)
	q := `
	UPDATE course
	SET title = :title, subject = :subject, description = :description, teacher_id = :teacher_id,
		price = :price, is_published = :is_published, updated_at = :updated_at
	WHERE id = :id`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return orig, nil
}
