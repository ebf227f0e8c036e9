package store

import (
	"context"
	"errors"
	"fmt"

	"users-api/internal/database"
	"users-api/internal/model"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound 表示指定 id 的使用者不存在
var ErrNotFound = errors.New("user not found")

const userColumns = `id, name, email, password, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Password,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return u, nil
}

func ListUsers(ctx context.Context, db database.DB) ([]model.User, error) {
	rows, err := db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return users, nil
}

func GetUserByID(ctx context.Context, db database.DB, userID int64) (*model.User, error) {
	row := db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users WHERE id = $1`,
		userID,
	)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetUserByID: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetUserByID: %w", err)
	}
	return u, nil
}

// CreateUser 寫入一筆使用者並回傳資料庫配發的 id
func CreateUser(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
	var id int64
	row := db.QueryRow(ctx,
		`INSERT INTO users (name, email, password)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		f.Name,
		f.Email,
		f.Password,
	)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("CreateUser: %w", err)
	}
	return id, nil
}

// UpdateUser 整筆覆寫 name/email/password，回傳受影響筆數
func UpdateUser(ctx context.Context, db database.DB, userID int64, f model.UserFields) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE users
		 SET name = $1, email = $2, password = $3, updated_at = now()
		 WHERE id = $4`,
		f.Name,
		f.Email,
		f.Password,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("UpdateUser: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteUser 回傳受影響筆數
func DeleteUser(ctx context.Context, db database.DB, userID int64) (int64, error) {
	tag, err := db.Exec(ctx,
		`DELETE FROM users WHERE id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("DeleteUser: %w", err)
	}
	return tag.RowsAffected(), nil
}
