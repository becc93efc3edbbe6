package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nesttask/nesttask/internal/routine"
)

// CoursesByIDs fetches the named courses in one IN query. Unknown ids are
// simply absent from the result.
func (c *Client) CoursesByIDs(ctx context.Context, ids []string) (map[string]routine.Course, error) {
	out := make(map[string]routine.Course)
	if len(ids) == 0 {
		return out, nil
	}

	query := "SELECT id, name, code FROM courses WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := c.conn.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch courses: %v", routine.ErrTransient, err)
	}
	defer rows.Close()

	for rows.Next() {
		var course routine.Course
		var code sql.NullString
		if err := rows.Scan(&course.ID, &course.Name, &code); err != nil {
			return nil, fmt.Errorf("%w: failed to scan course: %v", routine.ErrTransient, err)
		}
		course.Code = code.String
		out[course.ID] = course
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating courses: %v", routine.ErrTransient, err)
	}
	return out, nil
}

// TeachersByIDs fetches the named teachers in one IN query. Unknown ids
// are simply absent from the result.
func (c *Client) TeachersByIDs(ctx context.Context, ids []string) (map[string]routine.Teacher, error) {
	out := make(map[string]routine.Teacher)
	if len(ids) == 0 {
		return out, nil
	}

	query := "SELECT id, name FROM teachers WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := c.conn.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch teachers: %v", routine.ErrTransient, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t routine.Teacher
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan teacher: %v", routine.ErrTransient, err)
		}
		out[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating teachers: %v", routine.ErrTransient, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
