package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"users-api/internal/model"

	"github.com/labstack/echo/v4"
)

// RedactedValue 取代日誌中的密碼
const RedactedValue = "[REDACTED]"

// UserRequest 建立與更新使用者的請求內容 (JSON 或 form)
// 欄位不做任何驗證；缺少的欄位保持 nil
// swagger:model api.UserRequest
type UserRequest struct {
	Name     *string `json:"name" form:"name" example:"Alice"`
	Email    *string `json:"email" form:"email" example:"alice@example.com"`
	Password *string `json:"password" form:"password" example:"Secret123!"`
}

// Fields 轉為 store 使用的欄位
func (r UserRequest) Fields() model.UserFields {
	return model.UserFields{Name: r.Name, Email: r.Email, Password: r.Password}
}

// LogValue 讓 UserRequest 寫入日誌時永遠遮蔽密碼
func (r UserRequest) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if r.Name != nil {
		attrs = append(attrs, slog.String("name", *r.Name))
	}
	if r.Email != nil {
		attrs = append(attrs, slog.String("email", *r.Email))
	}
	if r.Password != nil {
		attrs = append(attrs, slog.String("password", RedactedValue))
	}
	return slog.GroupValue(attrs...)
}

// BindUserRequest 依 Content-Type 解析 JSON 或 x-www-form-urlencoded
// 其他類型或空 body 視為沒有任何欄位
func BindUserRequest(c echo.Context) (UserRequest, error) {
	var req UserRequest
	httpReq := c.Request()
	if httpReq.Body == nil || httpReq.Body == http.NoBody {
		return req, nil
	}

	ctype := httpReq.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		form, err := c.FormParams()
		if err != nil {
			return req, fmt.Errorf("parse form: %w", err)
		}
		req.Name = formValue(form, "name")
		req.Email = formValue(form, "email")
		req.Password = formValue(form, "password")
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
			if errors.Is(err, io.EOF) {
				return UserRequest{}, nil
			}
			return UserRequest{}, fmt.Errorf("decode json: %w", err)
		}
	}
	return req, nil
}

func formValue(form url.Values, key string) *string {
	v, ok := form[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}
