package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// LinkRepository resolves the user/group/subject Link join that underlies
// group membership, group-teacher identity, and Candidate Lesson participant
// resolution (spec §4.2).
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new repository instance.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// FindTeacher returns the unique teacher linked to a group. Ties (more than
// one teacher-type user linked to the same group, which the data model does
// not forbid) are broken by stable persistence order: the earliest-created
// linked user wins.
func (r *LinkRepository) FindTeacher(ctx context.Context, groupID string) (*models.User, error) {
	const query = `
		SELECT u.id, u.user_type, u.year_group, u.title, u.first_name, u.last_name, u.created_at, u.updated_at
		FROM users u
		JOIN links l ON l.user_id = u.id
		WHERE l.group_id = $1 AND u.user_type = 'teacher'
		ORDER BY u.created_at ASC, u.id ASC
		LIMIT 1`
	var teacher models.User
	if err := r.db.GetContext(ctx, &teacher, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group teacher: %w", err)
	}
	return &teacher, nil
}

// FindParticipants returns every distinct user linked to a group, regardless
// of user type.
func (r *LinkRepository) FindParticipants(ctx context.Context, groupID string) ([]models.User, error) {
	const query = `
		SELECT DISTINCT u.id, u.user_type, u.year_group, u.title, u.first_name, u.last_name, u.created_at, u.updated_at
		FROM users u
		JOIN links l ON l.user_id = u.id
		WHERE l.group_id = $1
		ORDER BY u.created_at ASC, u.id ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, groupID); err != nil {
		return nil, fmt.Errorf("find group participants: %w", err)
	}
	return users, nil
}

// FindStudents returns every student-type user linked to a group; used to
// build the Data Gateway's student roster, deduplicated by id across all of
// a run's groups by the caller.
func (r *LinkRepository) FindStudents(ctx context.Context, groupID string) ([]models.User, error) {
	const query = `
		SELECT DISTINCT u.id, u.user_type, u.year_group, u.title, u.first_name, u.last_name, u.created_at, u.updated_at
		FROM users u
		JOIN links l ON l.user_id = u.id
		WHERE l.group_id = $1 AND u.user_type = 'student'
		ORDER BY u.created_at ASC, u.id ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, groupID); err != nil {
		return nil, fmt.Errorf("find group students: %w", err)
	}
	return users, nil
}

// Create persists a new user/group/subject link.
func (r *LinkRepository) Create(ctx context.Context, link *models.Link) error {
	const query = `INSERT INTO links (user_id, group_id, subject_id) VALUES (:user_id, :group_id, :subject_id)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// Delete removes a user/group/subject link.
func (r *LinkRepository) Delete(ctx context.Context, userID, groupID, subjectID string) error {
	const query = `DELETE FROM links WHERE user_id = $1 AND group_id = $2 AND subject_id = $3`
	if _, err := r.db.ExecContext(ctx, query, userID, groupID, subjectID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}
