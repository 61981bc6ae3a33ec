package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/storefront/internal/auth"
	"github.com/dukerupert/storefront/internal/database"
	"github.com/dukerupert/storefront/internal/metrics"
	"github.com/dukerupert/storefront/internal/model"
	"github.com/dukerupert/storefront/internal/store"
	"github.com/dukerupert/storefront/internal/websocket"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const (
	adminEmail    = "boss@example.com"
	adminPassword = "correct horse battery staple"
)

type fakeMailer struct {
	mu     sync.Mutex
	tokens map[string]string
	links  map[string]string
	err    error
}

func (m *fakeMailer) SendMagicLink(ctx context.Context, toEmail, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[toEmail] = token
	return m.err
}

func (m *fakeMailer) SendOrderLink(ctx context.Context, toEmail, orderPublicID, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = map[string]string{}
	}
	m.links[toEmail] = link
	return m.err
}

type recordedEvents struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (r *recordedEvents) Publish(ev websocket.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	auth       *AuthHandler
	admin      *AdminHandler
	sessions   *auth.Sessions
	cookies    *auth.CookieTransport
	principals *store.PrincipalStore
	orders     *store.OrderStore
	mailer     *fakeMailer
	events     *recordedEvents
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.Default()
	ps := store.NewPrincipalStore(db)
	ords := store.NewOrderStore(db)

	sessions, err := auth.NewSessions(testSecret, ps)
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	authn, err := auth.NewAuthenticator(auth.AdminCredentials{
		Email:    adminEmail,
		Password: adminPassword,
	}, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}

	env := &testEnv{
		sessions:   sessions,
		cookies:    auth.NewCookieTransport(false),
		principals: ps,
		orders:     ords,
		mailer:     &fakeMailer{},
		events:     &recordedEvents{},
	}
	env.auth = NewAuthHandler(
		auth.NewLinkIssuer(store.NewMagicLinkStore(db), ps, auth.WithReservedEmail(adminEmail)),
		authn,
		sessions,
		env.cookies,
		auth.NewBridge(ords, logger),
		ps,
		env.mailer,
		metrics.NewAuth(),
		env.events,
		logger,
	)
	env.admin = NewAdminHandler(ps, ords, env.mailer, "https://shop.example.com", env.events, logger)
	return env
}

func jsonRequest(method, target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// withSession resolves the session cookie the way RequireAuth does.
func (env *testEnv) withSession(t *testing.T, req *http.Request, c *http.Cookie) *http.Request {
	t.Helper()
	p, err := env.sessions.Verify(req.Context(), auth.SessionToken(c.Value))
	if err != nil || p == nil {
		t.Fatalf("session cookie does not verify: %v", err)
	}
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func TestCustomerLinkSignIn(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.RequestLink(rec, jsonRequest("POST", "/api/auth/link", map[string]string{"email": "a@x.com"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request link status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	token := env.mailer.tokens["a@x.com"]
	if token == "" {
		t.Fatal("expected a link to be mailed to a@x.com")
	}

	p, _ := env.principals.GetByEmail(context.Background(), "a@x.com")
	if p != nil {
		t.Error("requesting a link should not create a principal")
	}

	rec = httptest.NewRecorder()
	env.auth.VerifyLink(rec, jsonRequest("POST", "/api/auth/verify", map[string]string{"token": token}))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]any
	json.NewDecoder(rec.Body).Decode(&got)
	if got["email"] != "a@x.com" {
		t.Errorf("email = %v, want a@x.com", got["email"])
	}
	if got["role"] != "customer" {
		t.Errorf("role = %v, want customer", got["role"])
	}
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	rec = httptest.NewRecorder()
	env.auth.Session(rec, env.withSession(t, httptest.NewRequest("GET", "/api/session", nil), cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d, want %d", rec.Code, http.StatusOK)
	}
	var session map[string]any
	json.NewDecoder(rec.Body).Decode(&session)
	if session["id"] != got["id"] {
		t.Errorf("session id = %v, want %v", session["id"], got["id"])
	}
	if _, leaked := session["ID"]; leaked {
		t.Error("internal id should not be serialized")
	}

	types := env.events.types()
	if len(types) != 2 || types[0] != websocket.ActionLinkIssued || types[1] != websocket.ActionSessionStarted {
		t.Errorf("events = %v, want [link_issued session_started]", types)
	}
}

func TestRequestLinkInvalidEmail(t *testing.T) {
	env := setupHandlerTest(t)

	for _, email := range []string{"", "not-an-email", "Alice <a@x.com>"} {
		rec := httptest.NewRecorder()
		env.auth.RequestLink(rec, jsonRequest("POST", "/api/auth/link", map[string]string{"email": email}))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("email %q: status = %d, want %d", email, rec.Code, http.StatusBadRequest)
			continue
		}
		if body := decodeError(t, rec); body.Code != "invalid_input" {
			t.Errorf("email %q: error = %q, want invalid_input", email, body.Code)
		}
	}
}

func TestRequestLinkBadJSON(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.RequestLink(rec, httptest.NewRequest("POST", "/api/auth/link", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRequestLinkMailFailureStillAccepted(t *testing.T) {
	env := setupHandlerTest(t)
	env.mailer.err = errors.New("postmark down")

	rec := httptest.NewRecorder()
	env.auth.RequestLink(rec, jsonRequest("POST", "/api/auth/link", map[string]string{"email": "a@x.com"}))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestVerifyLinkErrors(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.VerifyLink(rec, jsonRequest("POST", "/api/auth/verify", map[string]string{"token": "nope"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown token status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeError(t, rec); body.Code != "invalid_token" {
		t.Errorf("unknown token error = %q, want invalid_token", body.Code)
	}

	env.auth.RequestLink(httptest.NewRecorder(), jsonRequest("POST", "/api/auth/link", map[string]string{"email": "a@x.com"}))
	token := env.mailer.tokens["a@x.com"]

	rec = httptest.NewRecorder()
	env.auth.VerifyLink(rec, jsonRequest("POST", "/api/auth/verify", map[string]string{"token": token}))
	if rec.Code != http.StatusOK {
		t.Fatalf("first verify status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	env.auth.VerifyLink(rec, jsonRequest("POST", "/api/auth/verify", map[string]string{"token": token}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reuse status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeError(t, rec); body.Code != "token_already_used" {
		t.Errorf("reuse error = %q, want token_already_used", body.Code)
	}
	if sessionCookie(rec) != nil {
		t.Error("failed verify should not set a cookie")
	}
}

func TestAdminLoginWrongPassword(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.AdminLogin(rec, jsonRequest("POST", "/api/admin/login", map[string]string{
		"email":    adminEmail,
		"password": "wrong",
	}))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, rec); body.Code != "invalid_credentials" {
		t.Errorf("error = %q, want invalid_credentials", body.Code)
	}
	if sessionCookie(rec) != nil {
		t.Error("rejected login should not set a cookie")
	}
	p, err := env.principals.GetByEmail(context.Background(), adminEmail)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if p != nil {
		t.Error("rejected login should not create a principal")
	}
}

func TestAdminLoginSuccess(t *testing.T) {
	env := setupHandlerTest(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		env.auth.AdminLogin(rec, jsonRequest("POST", "/api/admin/login", map[string]string{
			"email":    "Boss@Example.com",
			"password": adminPassword,
		}))
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d status = %d, want %d", i, rec.Code, http.StatusOK)
		}
		if sessionCookie(rec) == nil {
			t.Fatalf("login %d: expected session cookie", i)
		}
	}

	list, err := env.principals.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("principals = %d, want 1", len(list))
	}
	if list[0].Role != model.RoleAdmin {
		t.Errorf("role = %v, want admin", list[0].Role)
	}
}

func TestSessionWithoutPrincipal(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.Session(rec, httptest.NewRequest("GET", "/api/session", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	env := setupHandlerTest(t)

	p, _ := env.principals.Create(context.Background(), "a@x.com", model.RoleCustomer, true)
	token, _, _ := env.sessions.Issue(p.ID)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: string(token)})
	rec := httptest.NewRecorder()
	env.auth.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	c := sessionCookie(rec)
	if c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want cleared", c)
	}
	types := env.events.types()
	if len(types) != 1 || types[0] != websocket.ActionSessionEnded {
		t.Errorf("events = %v, want [session_ended]", types)
	}
}

func TestOrderSignIn(t *testing.T) {
	env := setupHandlerTest(t)
	ctx := context.Background()

	p, _ := env.principals.Create(ctx, "a@x.com", model.RoleCustomer, true)
	order, err := env.orders.Create(ctx, p.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	token := auth.DeriveBridgeToken(order.PublicID, p.ID)

	rec := httptest.NewRecorder()
	env.auth.OrderSignIn(rec, httptest.NewRequest("GET", "/auth/order?order="+order.PublicID+"&token="+string(token), nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/orders/"+order.PublicID {
		t.Errorf("location = %q, want %q", loc, "/orders/"+order.PublicID)
	}
	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("expected session cookie")
	}
	got, _ := env.sessions.Verify(ctx, auth.SessionToken(c.Value))
	if got == nil || got.ID != p.ID {
		t.Errorf("session principal = %v, want id %d", got, p.ID)
	}
}

func TestOrderSignInMismatch(t *testing.T) {
	env := setupHandlerTest(t)
	ctx := context.Background()

	p, _ := env.principals.Create(ctx, "a@x.com", model.RoleCustomer, true)
	order, _ := env.orders.Create(ctx, p.ID)

	rec := httptest.NewRecorder()
	env.auth.OrderSignIn(rec, httptest.NewRequest("GET", "/auth/order?order="+order.PublicID+"&token=forged", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/orders/"+order.PublicID {
		t.Errorf("location = %q, want %q", loc, "/orders/"+order.PublicID)
	}
	if sessionCookie(rec) != nil {
		t.Error("mismatched token should not set a cookie")
	}
}

func TestOrderSignInKeepsCurrentSession(t *testing.T) {
	env := setupHandlerTest(t)
	ctx := context.Background()

	p, _ := env.principals.Create(ctx, "a@x.com", model.RoleCustomer, true)
	order, _ := env.orders.Create(ctx, p.ID)
	target := "/auth/order?order=" + order.PublicID + "&token=" + string(auth.DeriveBridgeToken(order.PublicID, p.ID))

	// Already signed in as the owner.
	req := httptest.NewRequest("GET", target, nil)
	req = req.WithContext(auth.WithPrincipal(ctx, p))
	rec := httptest.NewRecorder()
	env.auth.OrderSignIn(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if sessionCookie(rec) != nil {
		t.Error("owner session should not be re-issued")
	}

	// Signed in as the admin.
	admin, _ := env.principals.EnsureAdmin(ctx, adminEmail)
	req = httptest.NewRequest("GET", target, nil)
	req = req.WithContext(auth.WithPrincipal(ctx, admin))
	rec = httptest.NewRecorder()
	env.auth.OrderSignIn(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if sessionCookie(rec) != nil {
		t.Error("admin session should not be replaced by the customer")
	}

	// Signed in as someone else.
	other, _ := env.principals.Create(ctx, "b@x.com", model.RoleCustomer, true)
	req = httptest.NewRequest("GET", target, nil)
	req = req.WithContext(auth.WithPrincipal(ctx, other))
	rec = httptest.NewRecorder()
	env.auth.OrderSignIn(rec, req)
	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("expected owner session cookie")
	}
	got, _ := env.sessions.Verify(ctx, auth.SessionToken(c.Value))
	if got == nil || got.ID != p.ID {
		t.Errorf("session principal = %v, want id %d", got, p.ID)
	}
}

func TestRequestLinkAdminAddress(t *testing.T) {
	env := setupHandlerTest(t)

	rec := httptest.NewRecorder()
	env.auth.RequestLink(rec, jsonRequest("POST", "/api/auth/link", map[string]string{"email": "BOSS@example.com"}))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	env.mailer.mu.Lock()
	_, mailed := env.mailer.tokens[adminEmail]
	env.mailer.mu.Unlock()
	if mailed {
		t.Error("no sign-in link should be mailed to the admin address")
	}
	if types := env.events.types(); len(types) != 0 {
		t.Errorf("events = %v, want none", types)
	}
}

func TestWriteErrorUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, slog.Default(), errors.New("disk on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	body := decodeError(t, rec)
	if body.Code != "internal" {
		t.Errorf("error = %q, want internal", body.Code)
	}
	if strings.Contains(body.Message, "disk") {
		t.Errorf("message %q leaks the underlying error", body.Message)
	}
}
