package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"Hope_Community/internal/app"
	"Hope_Community/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	t     *testing.T
	app   *app.App
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Database = config.DatabaseConfig{
		Driver:      "sqlite",
		Communities: filepath.Join(dir, "communities.db"),
		Users:       filepath.Join(dir, "users.db"),
		Threads:     filepath.Join(dir, "threads.db"),
		Replies:     filepath.Join(dir, "replies.db"),
	}
	cfg.Auth.Secret = "test-secret"

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	a, err := app.New(cfg, zap.NewNop(), rdb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &testServer{t: t, app: a}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.app.Engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// login 注册并登录，之后的请求带上 token
func (s *testServer) login(username string) {
	s.t.Helper()
	w, _ := s.do(http.MethodPost, "/api/auth/signup", map[string]string{"username": username, "password": "secret1"})
	require.Equal(s.t, http.StatusCreated, w.Code)
	w, env := s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": "secret1"})
	require.Equal(s.t, http.StatusOK, w.Code)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	s.token = data.Token
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestLoginSetsHttpOnlyCookie(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/auth/signup", map[string]string{"username": "alice", "password": "secret1"})

	w, env := s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, env = s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	// cookie 也能通过认证
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	s.app.Engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupDuplicateIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.login("alice")
	w, env := s.do(http.MethodPost, "/api/auth/signup", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, env.Error)
}

func TestJoinRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodPost, "/api/communities/1/join", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
}

func TestCommunityJoinLeaveFlow(t *testing.T) {
	s := newTestServer(t)
	s.login("alice")

	w, env := s.do(http.MethodPost, "/api/communities", map[string]any{
		"name": "乳腺癌",
		"dimensions": map[string]any{
			"stage": map[string]any{"label": "分期", "values": []string{"0期", "I期"}},
			"type":  map[string]any{"label": "分型", "values": []string{"三阴性"}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var community struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &community))
	base := "/api/communities/" + strconv.FormatUint(community.ID, 10)

	// 空 body 加入一级社区
	w, env = s.do(http.MethodPost, base+"/join", nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var joined struct {
		Level   int    `json:"level"`
		Changed bool   `json:"changed"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, 1, joined.Level)
	assert.True(t, joined.Changed)

	w, env = s.do(http.MethodPost, base+"/join", map[string]string{"stage": "0期", "type": "三阴性"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, 3, joined.Level)

	w, _ = s.do(http.MethodPost, base+"/join", map[string]string{"stage": "IV期"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodGet, "/api/user/communities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Len(t, rows, 4)

	w, env = s.do(http.MethodDelete, base+"/leave?stage="+url.QueryEscape("0期"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var left struct {
		Left bool `json:"left"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.True(t, left.Left)

	w, env = s.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		MemberCount int64 `json:"member_count"`
		IsMember    bool  `json:"is_member"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, int64(1), detail.MemberCount)
	assert.True(t, detail.IsMember)
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/auth/users/search", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Users []map[string]any `json:"users"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Users)
	assert.Zero(t, res.Total)

	w, _ = s.do(http.MethodGet, "/api/auth/users/search?community_filters="+url.QueryEscape("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/auth/users/search?age_min=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.login("alice")
	w, env = s.do(http.MethodPut, "/api/auth/profile", map[string]any{"gender": "女", "age": 35})
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	w, env = s.do(http.MethodGet, "/api/auth/users/search?gender="+url.QueryEscape("女")+"&age_min=35&age_max=35", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Users, 1)
	assert.Equal(t, "alice", res.Users[0]["username"])
	assert.NotContains(t, res.Users[0], "email")
}

func TestThreadEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login("alice")

	w, env := s.do(http.MethodPost, "/api/threads", map[string]any{"title": "hello", "content": "world"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var th struct {
		ID     uint64 `json:"id"`
		Author string `json:"author"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &th))
	assert.Equal(t, "alice", th.Author)
	path := "/api/threads/" + strconv.FormatUint(th.ID, 10)

	w, env = s.do(http.MethodPost, path+"/replies", map[string]any{"content": "first"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)

	s.token = ""
	w, _ = s.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodGet, path+"/replies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var groups []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	assert.Len(t, groups, 1)

	w, _ = s.do(http.MethodGet, "/api/threads/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
