package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"atlas-auth/internal/model"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// translate maps driver errors onto the model taxonomy, wrapping everything
// with the failing operation.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, model.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, model.ErrNotFound, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// setClause accumulates "column = $n" assignments for partial updates.
type setClause struct {
	columns []string
	args    []any
}

func (s *setClause) add(column string, value any) {
	s.args = append(s.args, value)
	s.columns = append(s.columns, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setClause) empty() bool {
	return len(s.columns) == 0
}
