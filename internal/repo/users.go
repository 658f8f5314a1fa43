package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"operador/internal/domain"
)

const userColumns = `id,email,COALESCE(name,''),role,COALESCE(password_hash,''),created_at,COALESCE(last_signed_in,'')`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.LastSignedIn); err != nil {
		return u, classify(err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a user and returns it with its new ID. A taken email is ErrConflict.
func (r Repo) CreateUser(ctx context.Context, u domain.User, evt domain.Event) (domain.User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = "user"
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO users(email,name,role,password_hash,created_at) VALUES (?,?,?,?,?)`
		args := []any{u.Email, nullable(u.Name), u.Role, nullable(u.PasswordHash), u.CreatedAt}
		if u.ID != 0 {
			query = `INSERT INTO users(id,email,name,role,password_hash,created_at) VALUES (?,?,?,?,?,?)`
			args = append([]any{u.ID}, args...)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if u.ID == 0 {
			if u.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		evt.UserID = u.ID
		if evt.EntityID == "" {
			evt.EntityID = fmt.Sprint(u.ID)
		}
		return r.Events.Append(ctx, tx, evt)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, normalizeEmail(email)))
}

func (r Repo) TouchSignIn(ctx context.Context, id int64, at string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET last_signed_in=? WHERE id=?`, at, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
