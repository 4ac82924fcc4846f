package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"relay-chat/internal/domain"
	"relay-chat/internal/llm"
	"relay-chat/internal/repository"
	"relay-chat/internal/service"
)

type fakeUserRepo struct {
	byID    map[string]domain.User
	byEmail map[string]string
	byPhone map[string]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

func (m *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrDuplicate
	}
	if user.Phone != "" {
		if _, ok := m.byPhone[user.Phone]; ok {
			return repository.ErrDuplicate
		}
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	if user.Phone != "" {
		m.byPhone[user.Phone] = user.ID
	}
	return nil
}

func (m *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *fakeUserRepo) UpdateChallenge(_ context.Context, id, codeHash string, expiresAt, resendAt, issuedAt time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.OtpCodeHash = codeHash
	user.OtpExpiresAt = &expiresAt
	user.OtpResendAt = &resendAt
	user.EmailVerifyIssuedAt = &issuedAt
	m.byID[id] = user
	return nil
}

func (m *fakeUserRepo) MarkVerified(_ context.Context, id string) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerified = true
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	user.OtpResendAt = nil
	user.EmailVerifyIssuedAt = nil
	m.byID[id] = user
	return nil
}

func (m *fakeUserRepo) UpdateInterests(_ context.Context, id string, interests []string) error {
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Interests = interests
	m.byID[id] = user
	return nil
}

type fakeChatRepo struct {
	byID map[string]domain.Chat
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{byID: make(map[string]domain.Chat)}
}

func (m *fakeChatRepo) Create(_ context.Context, chat domain.Chat) error {
	m.byID[chat.ID] = chat
	return nil
}

func (m *fakeChatRepo) GetByID(_ context.Context, id string) (domain.Chat, error) {
	chat, ok := m.byID[id]
	if !ok {
		return domain.Chat{}, pgx.ErrNoRows
	}
	return chat, nil
}

func (m *fakeChatRepo) ListByUser(_ context.Context, userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	for _, chat := range m.byID {
		if chat.UserID == userID {
			chats = append(chats, chat)
		}
	}
	return chats, nil
}

func (m *fakeChatRepo) UpdateMessages(_ context.Context, id string, messages []domain.ChatMessage) error {
	chat, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	chat.Messages = messages
	m.byID[id] = chat
	return nil
}

func (m *fakeChatRepo) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

type noopSender struct{}

func (noopSender) SendVerification(_ context.Context, _, _, _ string, _ time.Time) error {
	return nil
}

type testApp struct {
	router   *gin.Engine
	users    *fakeUserRepo
	chats    *fakeChatRepo
	tokens   *service.TokenService
	authServ *service.AuthService
}

func newTestApp(t *testing.T, llmClient llm.Client) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newFakeUserRepo()
	chats := newFakeChatRepo()
	tokens, err := service.NewTokenService(nil, "access-secret", "refresh-secret", "email-secret", 0, 0, 0, false)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	logger := zap.NewNop()
	verifyServ := service.NewVerifyService(logger, users, tokens, noopSender{}, nil, "http://localhost:8080", false)
	authServ := service.NewAuthService(logger, users, tokens, verifyServ)

	if llmClient == nil {
		llmClient = &llm.MockClient{Response: "mock reply"}
	}
	authH := NewAuthHandler(logger, authServ, verifyServ, CookieConfig{MaxAge: 3600}, false)
	chatH := NewChatHandler(logger, chats, llmClient)
	router := NewRouter(logger, tokens, authH, chatH, nil)

	return &testApp{
		router:   router,
		users:    users,
		chats:    chats,
		tokens:   tokens,
		authServ: authServ,
	}
}

// closeNotifyRecorder agrega CloseNotify al recorder: c.Stream lo exige del
// ResponseWriter antes de bombear frames.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func (a *testApp) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range mutate {
		fn(req)
	}
	rec := newCloseNotifyRecorder()
	a.router.ServeHTTP(rec, req)
	return rec.ResponseRecorder
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}
