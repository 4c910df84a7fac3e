package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Employee is one row of the employees table.
type Employee struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Title      string    `json:"title"`
	Department string    `json:"department"`
	HiredOn    time.Time `json:"hired_on"`
}

// EmployeeRepository reads employees through the shared pool.
type EmployeeRepository struct {
	db *sql.DB
}

func NewEmployeeRepository(db *sql.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// List returns every employee ordered by last then first name.
func (r *EmployeeRepository) List(ctx context.Context) ([]Employee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email, title, department, hired_on
		FROM employees
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	employees := make([]Employee, 0)
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Email, &e.Title, &e.Department, &e.HiredOn); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}
