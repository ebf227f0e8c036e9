package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"users-api/internal/api"
	"users-api/internal/database"
	"users-api/internal/logging"
	"users-api/internal/model"
	"users-api/internal/store"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newLogger() (logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logging.NewSlogLogger(slog.New(h)), &buf
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.JSONSerializer = api.JSONSerializer{}
	return e
}

func newCtx(e *echo.Echo, method, target, body, id string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != "" {
		c.SetPath("/api/users/:id")
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rec
}

func restoreStore() func() {
	l, c, g, u, d := listUsers, createUser, getUserByID, updateUser, deleteUser
	return func() {
		listUsers, createUser, getUserByID, updateUser, deleteUser = l, c, g, u, d
	}
}

func sampleUser(id int64) *model.User {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.User{ID: id, Name: "Alice", Email: "alice@example.com", Password: "pw", CreatedAt: ts, UpdatedAt: ts}
}

func TestList(t *testing.T) {
	t.Cleanup(restoreStore())
	e := newEcho()

	t.Run("empty", func(t *testing.T) {
		listUsers = func(ctx context.Context, db database.DB) ([]model.User, error) {
			return []model.User{}, nil
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodGet, "/api/users", "", "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).List()(c))
		require.Equal(t, http.StatusOK, rec.Code)
		env := decode(t, rec)
		require.True(t, env.Success)
		require.Equal(t, "users fetched", env.Message)
		require.JSONEq(t, `[]`, string(env.Data))
	})

	t.Run("store error", func(t *testing.T) {
		listUsers = func(ctx context.Context, db database.DB) ([]model.User, error) {
			return nil, fmt.Errorf("ListUsers: %w", errors.New("connection refused"))
		}
		log, buf := newLogger()
		c, rec := newCtx(e, http.MethodGet, "/api/users", "", "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).List()(c))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decode(t, rec)
		require.False(t, env.Success)
		require.Equal(t, "failed to fetch users", env.Message)
		require.NotContains(t, rec.Body.String(), "connection refused")
		require.Contains(t, buf.String(), `"origin":"ListUsers"`)
		require.Contains(t, buf.String(), "connection refused")
	})
}

func TestCreate(t *testing.T) {
	t.Cleanup(restoreStore())
	e := newEcho()

	t.Run("success re-reads row", func(t *testing.T) {
		var got model.UserFields
		createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
			got = f
			return 7, nil
		}
		getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
			require.Equal(t, int64(7), id)
			return sampleUser(7), nil
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPost, "/api/users",
			`{"name":"Alice","email":"alice@example.com","password":"pw"}`, "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Create()(c))
		require.Equal(t, http.StatusCreated, rec.Code)
		env := decode(t, rec)
		require.True(t, env.Success)
		require.Equal(t, "user created", env.Message)
		require.Equal(t, "Alice", *got.Name)
		require.Equal(t, "pw", *got.Password)

		var u model.User
		require.NoError(t, json.Unmarshal(env.Data, &u))
		require.Equal(t, int64(7), u.ID)
		require.Equal(t, "pw", u.Password)
	})

	t.Run("missing fields reach store as nil", func(t *testing.T) {
		createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
			require.Nil(t, f.Name)
			require.Nil(t, f.Email)
			require.Nil(t, f.Password)
			return 0, fmt.Errorf("CreateUser: %w", errors.New("null value in column \"name\""))
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPost, "/api/users", "", "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Create()(c))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "failed to create user", decode(t, rec).Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
			t.Fatal("store should not be called")
			return 0, nil
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPost, "/api/users", `{"name":}`, "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Create()(c))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "failed to create user", decode(t, rec).Message)
	})

	t.Run("vanished row is a fault", func(t *testing.T) {
		createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
			return 9, nil
		}
		getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
			return nil, fmt.Errorf("GetUserByID: %w", store.ErrNotFound)
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPost, "/api/users", `{"name":"a","email":"b","password":"c"}`, "")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Create()(c))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGet(t *testing.T) {
	t.Cleanup(restoreStore())
	e := newEcho()

	tests := []struct {
		name    string
		id      string
		fn      func(context.Context, database.DB, int64) (*model.User, error)
		code    int
		message string
	}{
		{
			name: "found",
			id:   "3",
			fn: func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
				return sampleUser(id), nil
			},
			code:    http.StatusOK,
			message: "user fetched",
		},
		{
			name: "not found",
			id:   "999",
			fn: func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
				return nil, fmt.Errorf("GetUserByID: %w", store.ErrNotFound)
			},
			code:    http.StatusNotFound,
			message: "user not found",
		},
		{
			name: "store error",
			id:   "3",
			fn: func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
				return nil, fmt.Errorf("GetUserByID: %w", errors.New("boom"))
			},
			code:    http.StatusInternalServerError,
			message: "failed to fetch user",
		},
		{
			name: "non-integer id",
			id:   "abc",
			fn: func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
				panic("store should not be called")
			},
			code:    http.StatusNotFound,
			message: "user not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getUserByID = tt.fn
			log, _ := newLogger()
			c, rec := newCtx(e, http.MethodGet, "/api/users/"+tt.id, "", tt.id)
			require.NoError(t, NewHandler(&database.FakeDB{}, log).Get()(c))
			require.Equal(t, tt.code, rec.Code)
			env := decode(t, rec)
			require.Equal(t, tt.code == http.StatusOK, env.Success)
			require.Equal(t, tt.message, env.Message)
			if !env.Success {
				require.Empty(t, env.Data)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	t.Cleanup(restoreStore())
	e := newEcho()
	body := `{"name":"Bob","email":"bob@example.com","password":"pw2"}`

	t.Run("success", func(t *testing.T) {
		updateUser = func(ctx context.Context, db database.DB, id int64, f model.UserFields) (int64, error) {
			require.Equal(t, "Bob", *f.Name)
			return 1, nil
		}
		getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
			u := sampleUser(id)
			u.Name = "Bob"
			return u, nil
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPut, "/api/users/1", body, "1")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Update()(c))
		require.Equal(t, http.StatusOK, rec.Code)
		env := decode(t, rec)
		require.True(t, env.Success)
		require.Equal(t, "user updated", env.Message)
		require.Contains(t, string(env.Data), `"Bob"`)
	})

	t.Run("zero rows affected", func(t *testing.T) {
		updateUser = func(ctx context.Context, db database.DB, id int64, f model.UserFields) (int64, error) {
			return 0, nil
		}
		getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
			t.Fatal("should not re-read")
			return nil, nil
		}
		log, _ := newLogger()
		c, rec := newCtx(e, http.MethodPut, "/api/users/999", body, "999")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Update()(c))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "user not found", decode(t, rec).Message)
	})

	t.Run("store error", func(t *testing.T) {
		updateUser = func(ctx context.Context, db database.DB, id int64, f model.UserFields) (int64, error) {
			return 0, fmt.Errorf("UpdateUser: %w", errors.New("duplicate key"))
		}
		log, buf := newLogger()
		c, rec := newCtx(e, http.MethodPut, "/api/users/1", body, "1")
		require.NoError(t, NewHandler(&database.FakeDB{}, log).Update()(c))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "failed to update user", decode(t, rec).Message)
		require.Contains(t, buf.String(), `"origin":"UpdateUser"`)
	})
}

func TestDelete(t *testing.T) {
	t.Cleanup(restoreStore())
	e := newEcho()

	tests := []struct {
		name    string
		rows    int64
		err     error
		code    int
		message string
	}{
		{name: "deleted", rows: 1, code: http.StatusOK, message: "user deleted"},
		{name: "missing", rows: 0, code: http.StatusNotFound, message: "user not found"},
		{name: "error", err: errors.New("boom"), code: http.StatusInternalServerError, message: "failed to delete user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleteUser = func(ctx context.Context, db database.DB, id int64) (int64, error) {
				return tt.rows, tt.err
			}
			log, _ := newLogger()
			c, rec := newCtx(e, http.MethodDelete, "/api/users/4", "", "4")
			require.NoError(t, NewHandler(&database.FakeDB{}, log).Delete()(c))
			require.Equal(t, tt.code, rec.Code)
			env := decode(t, rec)
			require.Equal(t, tt.message, env.Message)
			require.Empty(t, env.Data)
		})
	}
}

func TestLogsRedactPassword(t *testing.T) {
	t.Cleanup(restoreStore())
	const canary = "canary-Secret-42"
	createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
		return 1, nil
	}
	getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
		u := sampleUser(id)
		u.Password = canary
		return u, nil
	}
	updateUser = func(ctx context.Context, db database.DB, id int64, f model.UserFields) (int64, error) {
		return 0, fmt.Errorf("UpdateUser: %w", errors.New("boom"))
	}

	e := newEcho()
	log, buf := newLogger()
	h := NewHandler(&database.FakeDB{}, log)
	body := `{"name":"Alice","email":"alice@example.com","password":"` + canary + `"}`

	c, _ := newCtx(e, http.MethodPost, "/api/users", body, "")
	require.NoError(t, h.Create()(c))
	c, _ = newCtx(e, http.MethodPut, "/api/users/1", body, "1")
	require.NoError(t, h.Update()(c))

	out := buf.String()
	require.NotContains(t, out, canary)
	require.Contains(t, out, api.RedactedValue)
}

func TestLogEvents(t *testing.T) {
	t.Cleanup(restoreStore())
	getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
		return sampleUser(id), nil
	}
	e := newEcho()
	log, buf := newLogger()
	c, _ := newCtx(e, http.MethodGet, "/api/users/5", "", "5")
	c.Response().Header().Set(echo.HeaderXRequestID, "req-123")
	require.NoError(t, NewHandler(&database.FakeDB{}, log).Get()(c))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry, outcome map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &outcome))

	require.Equal(t, "request received", entry["msg"])
	require.Equal(t, "GET", entry["method"])
	require.Equal(t, "/api/users/5", entry["path"])
	require.Equal(t, "req-123", entry["request_id"])

	require.Equal(t, "request completed", outcome["msg"])
	require.Equal(t, float64(http.StatusOK), outcome["status"])
	require.Equal(t, float64(5), outcome["id"])
	require.Equal(t, "Alice", outcome["name"])
	require.Equal(t, "alice@example.com", outcome["email"])
	require.Contains(t, outcome, "duration")
}

func TestOriginAndTrace(t *testing.T) {
	root := errors.New("duplicate key value violates unique constraint")
	err := fmt.Errorf("UpdateUser: %w", root)
	require.Equal(t, "UpdateUser", origin(err))
	require.Equal(t, []string{"UpdateUser", root.Error()}, trace(err))

	nested := fmt.Errorf("decode json: %w", fmt.Errorf("read body: %w", root))
	require.Equal(t, "decode json", origin(nested))
	require.Equal(t, []string{"decode json", "read body", root.Error()}, trace(nested))

	require.Equal(t, "plain", origin(errors.New("plain")))
	require.Equal(t, []string{"plain"}, trace(errors.New("plain")))
}

func TestFailureLogCarriesTrace(t *testing.T) {
	t.Cleanup(restoreStore())
	deleteUser = func(ctx context.Context, db database.DB, id int64) (int64, error) {
		return 0, fmt.Errorf("DeleteUser: %w", errors.New("conn closed"))
	}
	log, buf := newLogger()
	c, _ := newCtx(newEcho(), http.MethodDelete, "/api/users/2", "", "2")
	require.NoError(t, NewHandler(&database.FakeDB{}, log).Delete()(c))
	require.Contains(t, buf.String(), `"trace":["DeleteUser","conn closed"]`)
}

// memStore 以記憶體模擬 users 資料表
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.User
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]model.User{}}
}

func (m *memStore) install() {
	listUsers = func(ctx context.Context, db database.DB) ([]model.User, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		out := make([]model.User, 0, len(m.rows))
		for id := int64(1); id <= m.nextID; id++ {
			if u, ok := m.rows[id]; ok {
				out = append(out, u)
			}
		}
		return out, nil
	}
	createUser = func(ctx context.Context, db database.DB, f model.UserFields) (int64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if f.Name == nil || f.Email == nil || f.Password == nil {
			return 0, errors.New("CreateUser: not null violation")
		}
		m.nextID++
		now := time.Now()
		m.rows[m.nextID] = model.User{ID: m.nextID, Name: *f.Name, Email: *f.Email, Password: *f.Password, CreatedAt: now, UpdatedAt: now}
		return m.nextID, nil
	}
	getUserByID = func(ctx context.Context, db database.DB, id int64) (*model.User, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		u, ok := m.rows[id]
		if !ok {
			return nil, fmt.Errorf("GetUserByID: %w", store.ErrNotFound)
		}
		return &u, nil
	}
	updateUser = func(ctx context.Context, db database.DB, id int64, f model.UserFields) (int64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		u, ok := m.rows[id]
		if !ok {
			return 0, nil
		}
		if f.Name == nil || f.Email == nil || f.Password == nil {
			return 0, errors.New("UpdateUser: not null violation")
		}
		u.Name, u.Email, u.Password = *f.Name, *f.Email, *f.Password
		u.UpdatedAt = time.Now()
		m.rows[id] = u
		return 1, nil
	}
	deleteUser = func(ctx context.Context, db database.DB, id int64) (int64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.rows[id]; !ok {
			return 0, nil
		}
		delete(m.rows, id)
		return 1, nil
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Cleanup(restoreStore())
	newMemStore().install()

	e := newEcho()
	h := NewHandler(&database.FakeDB{}, logging.Nop())
	g := e.Group("/api/users")
	g.GET("", h.List())
	g.POST("", h.Create())
	g.GET("/:id", h.Get())
	g.PUT("/:id", h.Update())
	g.DELETE("/:id", h.Delete())

	do := func(method, path, body string) (int, envelope) {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code, decode(t, rec)
	}

	code, env := do(http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `[]`, string(env.Data))

	code, env = do(http.MethodPost, "/api/users", `{"name":"A","email":"a@x","password":"p"}`)
	require.Equal(t, http.StatusCreated, code)
	var created model.User
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "A", created.Name)
	require.NotZero(t, created.ID)
	path := fmt.Sprintf("/api/users/%d", created.ID)

	code, env = do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "user fetched", env.Message)

	code, env = do(http.MethodPut, path, `{"name":"B","email":"b@x","password":"q"}`)
	require.Equal(t, http.StatusOK, code)
	var updated model.User
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.Equal(t, "B", updated.Name)
	require.Equal(t, created.ID, updated.ID)

	code, env = do(http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, code)
	var all []model.User
	require.NoError(t, json.Unmarshal(env.Data, &all))
	require.Len(t, all, 1)

	code, env = do(http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
	require.Equal(t, "user deleted", env.Message)

	code, env = do(http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, env.Success)

	code, _ = do(http.MethodDelete, path, "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(http.MethodPost, "/api/users", `{"name":"only-name"}`)
	require.Equal(t, http.StatusInternalServerError, code)
}
