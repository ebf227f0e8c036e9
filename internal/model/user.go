// File: internal/model/user.go
package model

import "time"

// User 對應 users 資料表；Password 以明文儲存
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Password  string    `db:"password" json:"password"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserFields 是寫入 users 的欄位；nil 會以 SQL NULL 寫入，交由資料表約束處理
type UserFields struct {
	Name     *string
	Email    *string
	Password *string
}
