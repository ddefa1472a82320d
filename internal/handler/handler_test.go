package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/testutil"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/cache"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/ratelimit"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memStore struct{}

func (memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	return "https://files.test/" + key, nil
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	jwt    *jwt.JWTService
	db     *gorm.DB
	repos  *repository.Repositories
}

const attachmentLimit = 64 << 10

func newTestServer(t *testing.T, sendLimit *ratelimit.Pool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutil.NewDB(t)
	repos := repository.New(gdb)
	feed := realtime.NewMemoryFeed()
	views := cache.NewMemory()
	unread := cache.NewUnreadCounter()

	threads := service.NewThreadService(repos, views, "Family Chat", time.Minute)
	messages := service.NewMessageService(repos, feed, service.MessageServiceOptions{
		Attachments:   memStore{},
		Views:         views,
		Unread:        unread,
		MaxAttachment: attachmentLimit,
		CacheTTL:      time.Minute,
	})
	receipts := service.NewReceiptService(repos, unread, time.Minute)
	counter := service.NewUnreadService(repos, unread, feed, time.Minute, 2)
	presence := service.NewPresenceService(realtime.NewMemoryPresence(), repos, time.Minute)

	jwtSvc := jwt.NewJWTService(config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour, Issuer: "test"})
	var limit gin.HandlerFunc
	if sendLimit != nil {
		limit = sendLimit.Middleware(jwt.GetMemberID)
	}

	r := gin.New()
	Register(r.Group("/api/v1"), jwtSvc.AuthMiddleware(), limit, &Handlers{
		Threads:       NewThreadHandler(threads, messages),
		Messages:      NewMessageHandler(messages, attachmentLimit),
		Receipts:      NewReceiptHandler(receipts, counter, messages),
		Presence:      NewPresenceHandler(presence),
		Notifications: NewNotificationHandler(repos.Preferences),
	})
	return &testServer{t: t, router: r, jwt: jwtSvc, db: gdb, repos: repos}
}

func (s *testServer) member(name string) (*model.Profile, string) {
	s.t.Helper()
	p := testutil.CreateProfile(s.t, s.db, name)
	token, err := s.jwt.GenerateToken(p.ID)
	require.NoError(s.t, err)
	return p, token
}

func (s *testServer) do(method, path, token string, body interface{}) apiResponse {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(req, token)
}

func (s *testServer) serve(req *http.Request, token string) apiResponse {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	require.Equal(t, 0, resp.Code, resp.Message)
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func (s *testServer) openDirect(token, otherID string) model.Thread {
	s.t.Helper()
	return decode[model.Thread](s.t, s.do(http.MethodPost, "/api/v1/threads/direct", token, gin.H{"member_id": otherID}))
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(http.MethodGet, "/api/v1/threads", "", nil)
	assert.Equal(t, 401, resp.Code)
}

func TestDirectThreadLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	ma, maToken := s.member("Ma")
	pa, paToken := s.member("Pa")

	thread := s.openDirect(maToken, pa.ID)
	assert.Equal(t, model.ThreadKindDirect, thread.Kind)
	// 对方打开得到同一个会话
	assert.Equal(t, thread.ID, s.openDirect(paToken, ma.ID).ID)

	resp := s.do(http.MethodPost, "/api/v1/threads/direct", maToken, gin.H{"member_id": ma.ID})
	assert.Equal(t, 400, resp.Code)

	sent := decode[service.MessageView](t, s.do(http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", maToken, gin.H{"content": " hello "}))
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, "Ma", sent.SenderName)

	resp = s.do(http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", maToken, gin.H{"content": "   "})
	assert.Equal(t, 400, resp.Code)

	list := decode[[]service.MessageView](t, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/messages", paToken, nil))
	require.Len(t, list, 1)

	// 只有作者可以编辑
	resp = s.do(http.MethodPatch, "/api/v1/messages/"+sent.ID, paToken, gin.H{"content": "hijack"})
	assert.Equal(t, 403, resp.Code)
	edited := decode[service.MessageView](t, s.do(http.MethodPatch, "/api/v1/messages/"+sent.ID, maToken, gin.H{"content": "hello!"}))
	assert.Equal(t, "hello!", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	resp = s.do(http.MethodDelete, "/api/v1/messages/"+sent.ID, maToken, nil)
	assert.Equal(t, 0, resp.Code)
	resp = s.do(http.MethodPatch, "/api/v1/messages/"+sent.ID, maToken, gin.H{"content": "again"})
	assert.Equal(t, 409, resp.Code)

	list = decode[[]service.MessageView](t, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/messages", paToken, nil))
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDeleted)
	assert.Empty(t, list[0].Content)

	threads := decode[[]service.ThreadSummary](t, s.do(http.MethodGet, "/api/v1/threads", paToken, nil))
	require.Len(t, threads, 1)
	assert.Equal(t, thread.ID, threads[0].ID)
}

func TestOutsiderCannotReadThread(t *testing.T) {
	s := newTestServer(t, nil)
	_, maToken := s.member("Ma")
	pa, _ := s.member("Pa")
	_, kidToken := s.member("Kid")

	thread := s.openDirect(maToken, pa.ID)
	assert.Equal(t, 403, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/messages", kidToken, nil).Code)
	assert.Equal(t, 403, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/receipts", kidToken, nil).Code)
	assert.Equal(t, 403, s.do(http.MethodPost, "/api/v1/threads/"+thread.ID+"/read", kidToken, nil).Code)
	assert.Equal(t, 404, s.do(http.MethodGet, "/api/v1/threads/missing/messages", kidToken, nil).Code)
}

func TestGroupThreadAndMembers(t *testing.T) {
	s := newTestServer(t, nil)
	_, maToken := s.member("Ma")
	pa, paToken := s.member("Pa")

	group := decode[model.Thread](t, s.do(http.MethodPost, "/api/v1/threads/group", maToken, nil))
	assert.Equal(t, model.ThreadKindGroup, group.Kind)
	require.NotNil(t, group.Title)
	assert.Equal(t, "Family Chat", *group.Title)

	assert.Equal(t, 403, s.do(http.MethodGet, "/api/v1/threads/"+group.ID+"/messages", paToken, nil).Code)
	resp := s.do(http.MethodPost, "/api/v1/threads/"+group.ID+"/members", maToken, gin.H{"member_id": pa.ID})
	require.Equal(t, 0, resp.Code, resp.Message)
	assert.Equal(t, 0, s.do(http.MethodGet, "/api/v1/threads/"+group.ID+"/messages", paToken, nil).Code)

	// 单聊不能加人
	kid, _ := s.member("Kid")
	direct := s.openDirect(maToken, pa.ID)
	assert.Equal(t, 400, s.do(http.MethodPost, "/api/v1/threads/"+direct.ID+"/members", maToken, gin.H{"member_id": kid.ID}).Code)
	assert.Equal(t, 404, s.do(http.MethodPost, "/api/v1/threads/"+group.ID+"/members", maToken, gin.H{"member_id": "missing"}).Code)

	// 再次加入得到同一个群聊
	again := decode[model.Thread](t, s.do(http.MethodPost, "/api/v1/threads/group", paToken, nil))
	assert.Equal(t, group.ID, again.ID)
}

func TestUnreadAndReceipts(t *testing.T) {
	s := newTestServer(t, nil)
	ma, maToken := s.member("Ma")
	pa, paToken := s.member("Pa")
	thread := s.openDirect(maToken, pa.ID)

	for _, text := range []string{"one", "two"} {
		decode[service.MessageView](t, s.do(http.MethodPost, "/api/v1/threads/"+thread.ID+"/messages", maToken, gin.H{"content": text}))
	}

	type count struct {
		Count int64 `json:"count"`
	}
	assert.Equal(t, int64(2), decode[count](t, s.do(http.MethodGet, "/api/v1/unread/count", paToken, nil)).Count)
	assert.Equal(t, int64(0), decode[count](t, s.do(http.MethodGet, "/api/v1/unread/count", maToken, nil)).Count)

	receipts := decode[[]service.Receipt](t, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/receipts", maToken, nil))
	require.Len(t, receipts, 1)
	assert.Equal(t, pa.ID, receipts[0].MemberID)
	assert.Nil(t, receipts[0].LastReadAt)

	assert.Equal(t, 0, s.do(http.MethodPost, "/api/v1/threads/"+thread.ID+"/read", paToken, nil).Code)
	assert.Equal(t, int64(0), decode[count](t, s.do(http.MethodGet, "/api/v1/unread/count", paToken, nil)).Count)

	receipts = decode[[]service.Receipt](t, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/receipts", maToken, nil))
	require.Len(t, receipts, 1)
	assert.NotNil(t, receipts[0].LastReadAt)

	// 自己的回执不返回
	receipts = decode[[]service.Receipt](t, s.do(http.MethodGet, "/api/v1/threads/"+thread.ID+"/receipts", paToken, nil))
	require.Len(t, receipts, 1)
	assert.Equal(t, ma.ID, receipts[0].MemberID)
}

func multipartRequest(t *testing.T, path, content, filename, contentType string, size int) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if content != "" {
		require.NoError(t, w.WriteField("content", content))
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), size))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSendAttachment(t *testing.T) {
	s := newTestServer(t, nil)
	_, maToken := s.member("Ma")
	pa, _ := s.member("Pa")
	thread := s.openDirect(maToken, pa.ID)
	path := "/api/v1/threads/" + thread.ID + "/messages"

	sent := decode[service.MessageView](t, s.serve(multipartRequest(t, path, "", "photo.png", "image/png", 1024), maToken))
	require.NotNil(t, sent.AttachmentURL)
	require.NotNil(t, sent.AttachmentType)
	assert.Equal(t, model.AttachmentImage, *sent.AttachmentType)
	assert.Equal(t, "photo.png", *sent.AttachmentName)
	assert.Empty(t, sent.Content)

	resp := s.serve(multipartRequest(t, path, "big", "big.bin", "application/octet-stream", attachmentLimit+1), maToken)
	assert.Equal(t, 413, resp.Code)
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.member("Ma")

	type prefs struct {
		Sound bool `json:"sound"`
		Push  bool `json:"push"`
	}
	assert.Equal(t, prefs{Sound: true, Push: true}, decode[prefs](t, s.do(http.MethodGet, "/api/v1/notifications/preferences", token, nil)))

	got := decode[prefs](t, s.do(http.MethodPut, "/api/v1/notifications/preferences", token, gin.H{"sound": false}))
	assert.Equal(t, prefs{Sound: false, Push: true}, got)
}

func TestLastSeen(t *testing.T) {
	s := newTestServer(t, nil)
	ma, token := s.member("Ma")
	pa, _ := s.member("Pa")
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.repos.Profiles.UpdateLastSeen(context.Background(), pa.ID, at))

	assert.Equal(t, 400, s.do(http.MethodGet, "/api/v1/presence/last-seen", token, nil).Code)

	seen := decode[map[string]*time.Time](t, s.do(http.MethodGet, "/api/v1/presence/last-seen?ids="+pa.ID+","+ma.ID, token, nil))
	require.NotNil(t, seen[pa.ID])
	assert.True(t, at.Equal(*seen[pa.ID]))
	assert.Nil(t, seen[ma.ID])
}

func TestSendRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.NewPool(0.001, 1))
	_, maToken := s.member("Ma")
	pa, _ := s.member("Pa")
	thread := s.openDirect(maToken, pa.ID)
	path := "/api/v1/threads/" + thread.ID + "/messages"

	assert.Equal(t, 0, s.do(http.MethodPost, path, maToken, gin.H{"content": "one"}).Code)
	assert.Equal(t, 429, s.do(http.MethodPost, path, maToken, gin.H{"content": "two"}).Code)
}
