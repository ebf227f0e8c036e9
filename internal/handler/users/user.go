package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"users-api/internal/api"
	"users-api/internal/database"
	"users-api/internal/logging"
	"users-api/internal/model"
	"users-api/internal/store"

	"github.com/labstack/echo/v4"
)

var (
	listUsers   = store.ListUsers
	createUser  = store.CreateUser
	getUserByID = store.GetUserByID
	updateUser  = store.UpdateUser
	deleteUser  = store.DeleteUser
)

const msgNotFound = "user not found"

// Handler 提供 /api/users 的五個操作
type Handler struct {
	db  database.DB
	log logging.Logger
}

func NewHandler(db database.DB, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{db: db, log: log}
}

// input 由 wrapper 解析好的請求內容
type input struct {
	ID   int64
	Body api.UserRequest
}

type operation struct {
	name     string
	withID   bool
	withBody bool
	status   int
	okMsg    string
	failMsg  string
	run      func(ctx context.Context, in input) (any, error)
}

// wrap 統一處理：進入日誌、計時、錯誤分類、結果日誌
func (h *Handler) wrap(op operation) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := req.Context()
		log := h.log.With(
			"op", op.name,
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)

		var in input
		entry := make([]any, 0, 4)
		if op.withID {
			entry = append(entry, "id", c.Param("id"))
		}
		var bindErr error
		if op.withBody {
			in.Body, bindErr = api.BindUserRequest(c)
			entry = append(entry, "body", in.Body)
		}
		log.Info(ctx, "request received", entry...)

		if bindErr != nil {
			return h.fail(c, log, op, start, bindErr)
		}

		if op.withID {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				// 非整數 id 不會對應到任何資料列
				return h.notFound(c, log, start)
			}
			in.ID = id
		}

		data, err := op.run(ctx, in)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return h.notFound(c, log, start)
			}
			return h.fail(c, log, op, start, err)
		}

		args := []any{"status", op.status, "duration", time.Since(start)}
		switch v := data.(type) {
		case *model.User:
			args = append(args, "id", v.ID, "name", v.Name, "email", v.Email)
		case []model.User:
			args = append(args, "count", len(v))
		case nil:
			if op.withID {
				args = append(args, "id", in.ID)
			}
		}
		log.Info(ctx, "request completed", args...)
		return c.JSON(op.status, api.OK(data, op.okMsg))
	}
}

func (h *Handler) notFound(c echo.Context, log logging.Logger, start time.Time) error {
	log.Warn(c.Request().Context(), msgNotFound,
		"status", http.StatusNotFound,
		"duration", time.Since(start),
	)
	return c.JSON(http.StatusNotFound, api.Fail(msgNotFound))
}

func (h *Handler) fail(c echo.Context, log logging.Logger, op operation, start time.Time, err error) error {
	log.Error(c.Request().Context(), "request failed",
		"status", http.StatusInternalServerError,
		"duration", time.Since(start),
		"error", err.Error(),
		"origin", origin(err),
		"trace", trace(err),
	)
	return c.JSON(http.StatusInternalServerError, api.Fail(op.failMsg))
}

// origin 取出最外層的包裝前綴，例如 "UpdateUser"
func origin(err error) string {
	before, _, _ := strings.Cut(err.Error(), ": ")
	return before
}

// trace 依包裝順序列出每一層錯誤的前綴，最後一項為根因
func trace(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.Unwrap(e) == nil {
			out = append(out, e.Error())
			break
		}
		out = append(out, origin(e))
	}
	return out
}

// @Summary     List users
// @Description 取得所有使用者 (依 id 排序)
// @Tags        users
// @Produce     json
// @Success     200 {object} api.Envelope{data=[]model.User}
// @Failure     500 {object} api.Envelope
// @Router      /users [get]
func (h *Handler) List() echo.HandlerFunc {
	return h.wrap(operation{
		name:    "list",
		status:  http.StatusOK,
		okMsg:   "users fetched",
		failMsg: "failed to fetch users",
		run: func(ctx context.Context, _ input) (any, error) {
			return listUsers(ctx, h.db)
		},
	})
}

// @Summary     Create a user
// @Description 建立使用者，回傳重新讀取後的資料列
// @Tags        users
// @Accept      json
// @Accept      application/x-www-form-urlencoded
// @Produce     json
// @Param       user body api.UserRequest true "使用者資料"
// @Success     201 {object} api.Envelope{data=model.User}
// @Failure     500 {object} api.Envelope
// @Router      /users [post]
func (h *Handler) Create() echo.HandlerFunc {
	return h.wrap(operation{
		name:     "create",
		withBody: true,
		status:   http.StatusCreated,
		okMsg:    "user created",
		failMsg:  "failed to create user",
		run: func(ctx context.Context, in input) (any, error) {
			id, err := createUser(ctx, h.db, in.Body.Fields())
			if err != nil {
				return nil, err
			}
			u, err := getUserByID(ctx, h.db, id)
			if err != nil {
				// 剛建立的資料列讀不到屬於異常，不回 404
				return nil, fmt.Errorf("re-read created user %d: %s", id, err)
			}
			return u, nil
		},
	})
}

// @Summary     Get a user
// @Tags        users
// @Produce     json
// @Param       id path int true "使用者 ID"
// @Success     200 {object} api.Envelope{data=model.User}
// @Failure     404 {object} api.Envelope
// @Failure     500 {object} api.Envelope
// @Router      /users/{id} [get]
func (h *Handler) Get() echo.HandlerFunc {
	return h.wrap(operation{
		name:    "get",
		withID:  true,
		status:  http.StatusOK,
		okMsg:   "user fetched",
		failMsg: "failed to fetch user",
		run: func(ctx context.Context, in input) (any, error) {
			return getUserByID(ctx, h.db, in.ID)
		},
	})
}

// @Summary     Update a user
// @Description 整筆覆寫 name/email/password，回傳更新後的資料列
// @Tags        users
// @Accept      json
// @Accept      application/x-www-form-urlencoded
// @Produce     json
// @Param       id   path int             true "使用者 ID"
// @Param       user body api.UserRequest true "使用者資料"
// @Success     200 {object} api.Envelope{data=model.User}
// @Failure     404 {object} api.Envelope
// @Failure     500 {object} api.Envelope
// @Router      /users/{id} [put]
func (h *Handler) Update() echo.HandlerFunc {
	return h.wrap(operation{
		name:     "update",
		withID:   true,
		withBody: true,
		status:   http.StatusOK,
		okMsg:    "user updated",
		failMsg:  "failed to update user",
		run: func(ctx context.Context, in input) (any, error) {
			n, err := updateUser(ctx, h.db, in.ID, in.Body.Fields())
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, fmt.Errorf("UpdateUser: %w", store.ErrNotFound)
			}
			return getUserByID(ctx, h.db, in.ID)
		},
	})
}

// @Summary     Delete a user
// @Tags        users
// @Produce     json
// @Param       id path int true "使用者 ID"
// @Success     200 {object} api.Envelope
// @Failure     404 {object} api.Envelope
// @Failure     500 {object} api.Envelope
// @Router      /users/{id} [delete]
func (h *Handler) Delete() echo.HandlerFunc {
	return h.wrap(operation{
		name:    "delete",
		withID:  true,
		status:  http.StatusOK,
		okMsg:   "user deleted",
		failMsg: "failed to delete user",
		run: func(ctx context.Context, in input) (any, error) {
			n, err := deleteUser(ctx, h.db, in.ID)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, fmt.Errorf("DeleteUser: %w", store.ErrNotFound)
			}
			return nil, nil
		},
	})
}
