package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mediationflow/dispute"
	"mediationflow/identity"
	"mediationflow/media"
	"mediationflow/message"
	"mediationflow/presence"
	"mediationflow/session"
)

// --- in-memory fakes wired under the real services ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]identity.User
}

func (m *memUsers) CreateUser(ctx context.Context, params identity.CreateUserParams) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[params.Email]; ok {
		return identity.User{}, identity.ErrDuplicateEmail
	}
	user := identity.User{
		ID:           "user-" + params.Email,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
	}
	m.users[params.Email] = user
	return user, nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return user, nil
}

func (m *memUsers) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return identity.User{}, identity.ErrUserNotFound
}

type memDisputes struct{ records map[string]dispute.Record }

func (m *memDisputes) GetByID(ctx context.Context, id string) (dispute.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return dispute.Record{}, dispute.ErrNotFound
	}
	return rec, nil
}

func (m *memDisputes) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := m.records[id]
	return ok, nil
}

func (m *memDisputes) ListForUser(ctx context.Context, userID string) ([]dispute.Record, error) {
	var out []dispute.Record
	for _, rec := range m.records {
		if rec.ClientID == userID || rec.ProviderID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func (m *memSessions) Ensure(ctx context.Context, disputeID string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[disputeID]; ok {
		return sess, nil
	}
	sess := session.Session{DisputeID: disputeID, CreatedAt: time.Now()}
	m.sessions[disputeID] = sess
	return sess, nil
}

func (m *memSessions) Get(ctx context.Context, disputeID string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[disputeID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (m *memSessions) SetPaused(ctx context.Context, disputeID string, value bool) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[disputeID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	if sess.Decided() {
		return session.Session{}, session.ErrClosed
	}
	sess.Paused = value
	m.sessions[disputeID] = sess
	return sess, nil
}

func (m *memSessions) RecordDecision(ctx context.Context, disputeID, userID string, agreed bool) (session.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[disputeID]
	if !ok {
		return session.Decision{}, session.ErrNotFound
	}
	if sess.Decided() {
		return session.Decision{}, session.ErrAlreadyDecided
	}
	now := time.Now()
	sess.DecidedBy = &userID
	sess.Agreed = &agreed
	sess.DecidedAt = &now
	m.sessions[disputeID] = sess
	return session.Decision{SessionID: disputeID, UserID: userID, Agreed: agreed, DecidedAt: now}, nil
}

type memPresence struct {
	mu      sync.Mutex
	records map[string]presence.Record // keyed by sessionID+userID
}

func (m *memPresence) Heartbeat(ctx context.Context, sessionID, userID string, role identity.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[sessionID+"/"+userID] = presence.Record{
		SessionID:     sessionID,
		UserID:        userID,
		Role:          role,
		Present:       true,
		LastHeartbeat: time.Now(),
	}
	return nil
}

func (m *memPresence) Snapshot(ctx context.Context, sessionID string) ([]presence.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []presence.Record
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memPresence) drop(sessionID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[sessionID+"/"+userID]
	rec.Present = false
	m.records[sessionID+"/"+userID] = rec
}

type memMessages struct {
	mu   sync.Mutex
	msgs []message.Message
	seq  int
}

func (m *memMessages) Insert(ctx context.Context, params message.AppendParams) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg := message.Message{
		ID:         fmt.Sprintf("m%04d", m.seq),
		SessionID:  params.SessionID,
		SenderID:   params.SenderID,
		SenderRole: params.SenderRole,
		Type:       params.Type,
		CreatedAt:  time.Now(),
	}
	if params.Content != "" {
		content := params.Content
		msg.Content = &content
	}
	if params.FileURL != "" {
		url, name := params.FileURL, params.FileName
		msg.FileURL = &url
		msg.FileName = &name
	}
	if params.Type == message.TypeVoice {
		d := params.DurationSeconds
		msg.DurationSeconds = &d
	}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memMessages) List(ctx context.Context, sessionID string) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []message.Message
	for _, msg := range m.msgs {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// --- harness ---

type env struct {
	server   *httptest.Server
	tokens   map[identity.Role]string
	presence *memPresence
	identity *identity.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	users := &memUsers{users: map[string]identity.User{}}
	identityService := identity.NewService(users, "test-secret")

	tokens := map[identity.Role]string{}
	ids := map[identity.Role]string{}
	for _, role := range []identity.Role{identity.RoleClient, identity.RoleProvider, identity.RoleAdmin} {
		email := string(role) + "@example.com"
		user, err := identityService.Provision(context.Background(), identity.ProvisionRequest{
			Email:    email,
			Password: "long-enough-password",
			FullName: string(role),
			Role:     role,
		})
		if err != nil {
			t.Fatalf("provision %s: %v", role, err)
		}
		result, err := identityService.Login(context.Background(), identity.LoginRequest{
			Email:    email,
			Password: "long-enough-password",
		})
		if err != nil {
			t.Fatalf("login %s: %v", role, err)
		}
		tokens[role] = result.Token
		ids[role] = user.ID
	}

	disputeService := dispute.NewService(&memDisputes{records: map[string]dispute.Record{
		"d1": {ID: "d1", ClientID: ids[identity.RoleClient], ProviderID: ids[identity.RoleProvider], Status: dispute.StatusUnderReview},
	}})

	presenceStore := &memPresence{records: map[string]presence.Record{}}
	sessionService := session.NewService(&memSessions{sessions: map[string]session.Session{}}, presenceStore, identityService, disputeService, 0)
	messageService := message.NewService(&memMessages{}, sessionService)
	intake := media.NewIntake(media.NewDiskStorage(t.TempDir(), "/media"), 0)

	router := NewRouter(Deps{
		Identity:       identityService,
		Disputes:       disputeService,
		Sessions:       sessionService,
		Messages:       messageService,
		Presence:       presenceStore,
		Intake:         intake,
		AllowedOrigins: []string{"*"},
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, tokens: tokens, presence: presenceStore, identity: identityService}
}

// provision creates an extra user outside the seeded dispute and returns a
// valid token for them.
func (e *env) provision(t *testing.T, email string, role identity.Role) string {
	t.Helper()
	if _, err := e.identity.Provision(context.Background(), identity.ProvisionRequest{
		Email:    email,
		Password: "long-enough-password",
		FullName: email,
		Role:     role,
	}); err != nil {
		t.Fatalf("provision %s: %v", email, err)
	}
	result, err := e.identity.Login(context.Background(), identity.LoginRequest{
		Email:    email,
		Password: "long-enough-password",
	})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return result.Token
}

func (e *env) do(t *testing.T, method, path string, role identity.Role, body any) (*http.Response, map[string]any) {
	t.Helper()
	token := ""
	if role != "" {
		token = e.tokens[role]
	}
	return e.doToken(t, method, path, token, body)
}

func (e *env) doToken(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *env) assemble(t *testing.T) {
	t.Helper()
	if resp, _ := e.do(t, http.MethodPost, "/sessions/d1", identity.RoleClient, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("ensure session: status %d", resp.StatusCode)
	}
	for _, role := range []identity.Role{identity.RoleClient, identity.RoleProvider} {
		if resp, _ := e.do(t, http.MethodPost, "/sessions/d1/heartbeat", role, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("heartbeat %s: status %d", role, resp.StatusCode)
		}
	}
}

// --- tests ---

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodGet, "/sessions/d1/messages", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSendTextWhenLive(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	resp, body := e.do(t, http.MethodGet, "/sessions/d1", identity.RoleClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: status %d", resp.StatusCode)
	}
	gate := body["gate"].(map[string]any)
	if gate["can_send"] != true || gate["phase"] != "live" {
		t.Fatalf("expected live sendable gate, got %v", gate)
	}

	resp, msg := e.do(t, http.MethodPost, "/sessions/d1/messages", identity.RoleClient,
		map[string]any{"type": "text", "content": "Hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post message: status %d (%v)", resp.StatusCode, msg)
	}
	if msg["content"] != "Hello" || msg["sender_role"] != "client" {
		t.Errorf("unexpected message %v", msg)
	}

	resp, _ = e.do(t, http.MethodGet, "/sessions/d1/messages", identity.RoleProvider, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list messages: status %d", resp.StatusCode)
	}
}

func TestSendBlockedWhenProviderAbsent(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)
	e.presence.drop("d1", "user-provider@example.com")

	resp, body := e.do(t, http.MethodPost, "/sessions/d1/messages", identity.RoleClient,
		map[string]any{"type": "text", "content": "anyone there?"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if errMsg, _ := body["error"].(string); !strings.Contains(errMsg, "provider") {
		t.Errorf("blocked reason should name the missing party, got %q", errMsg)
	}
}

func TestPauseAuthorization(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	resp, _ := e.do(t, http.MethodPost, "/sessions/d1/pause", identity.RoleProvider, map[string]any{"value": true})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("provider pause: status = %d, want 403", resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodGet, "/sessions/d1", identity.RoleClient, nil)
	if body["paused"] != false {
		t.Fatalf("denied pause must not change state: %v", body)
	}

	resp, _ = e.do(t, http.MethodPost, "/sessions/d1/pause", identity.RoleAdmin, map[string]any{"value": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin pause: status = %d, want 200", resp.StatusCode)
	}

	resp, body = e.do(t, http.MethodPost, "/sessions/d1/messages", identity.RoleClient,
		map[string]any{"type": "text", "content": "mid-typing"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("send while paused: status = %d, want 422", resp.StatusCode)
	}
	if errMsg, _ := body["error"].(string); !strings.Contains(errMsg, "paused by moderator") {
		t.Errorf("reason = %q, want paused by moderator", errMsg)
	}
}

func TestDecisionFlow(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	resp, _ := e.do(t, http.MethodPost, "/sessions/d1/decision", identity.RoleProvider, map[string]any{"agreed": true})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("provider decision: status = %d, want 403", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/sessions/d1/decision", identity.RoleClient, map[string]any{"agreed": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("client decision: status = %d, want 200", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/sessions/d1/decision", identity.RoleClient, map[string]any{"agreed": false})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second decision: status = %d, want 422", resp.StatusCode)
	}

	// Closed session rejects sends from every role.
	for _, role := range []identity.Role{identity.RoleClient, identity.RoleProvider, identity.RoleAdmin} {
		resp, _ = e.do(t, http.MethodPost, "/sessions/d1/messages", role,
			map[string]any{"type": "text", "content": "late"})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s send after close: status = %d, want 422", role, resp.StatusCode)
		}
	}

	resp, body := e.do(t, http.MethodGet, "/sessions/d1", identity.RoleClient, nil)
	gate := body["gate"].(map[string]any)
	if gate["phase"] != "closed" {
		t.Errorf("phase = %v, want closed", gate["phase"])
	}
}

func TestUploadThenImageMessage(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("kind", "image")
	part, err := mw.CreateFormFile("file", "evidence.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("not-a-real-png"))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/sessions/d1/uploads", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.tokens[identity.RoleClient])
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status = %d, want 200", resp.StatusCode)
	}

	var stored map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if stored["file_url"] == "" || stored["file_name"] != "evidence.png" {
		t.Fatalf("unexpected upload result %v", stored)
	}

	postResp, msg := e.do(t, http.MethodPost, "/sessions/d1/messages", identity.RoleClient, map[string]any{
		"type":      "image",
		"file_url":  stored["file_url"],
		"file_name": stored["file_name"],
	})
	if postResp.StatusCode != http.StatusCreated {
		t.Fatalf("image message: status = %d (%v)", postResp.StatusCode, msg)
	}
	if msg["file_url"] == "" {
		t.Errorf("media message must carry the stored reference")
	}
}

func TestImageMessageWithoutUpload(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	resp, _ := e.do(t, http.MethodPost, "/sessions/d1/messages", identity.RoleClient, map[string]any{"type": "image"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestEnsureUnknownDispute(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/sessions/ghost", identity.RoleClient, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStrangerLockedOut(t *testing.T) {
	e := newEnv(t)
	e.assemble(t)

	token := e.provision(t, "intruder@example.com", identity.RoleClient)

	attempts := []struct{ method, path string }{
		{http.MethodPost, "/sessions/d1"},
		{http.MethodPost, "/sessions/d1/heartbeat"},
		{http.MethodGet, "/sessions/d1"},
		{http.MethodGet, "/sessions/d1/messages"},
	}
	for _, a := range attempts {
		resp, _ := e.doToken(t, a.method, a.path, token, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", a.method, a.path, resp.StatusCode)
		}
	}

	// The stranger's heartbeat must not have registered, or it would count
	// toward the quorum as a second client.
	records, err := e.presence.Snapshot(context.Background(), "d1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, rec := range records {
		if rec.UserID == "user-intruder@example.com" {
			t.Errorf("stranger presence recorded: %+v", rec)
		}
	}
}

func TestClientConfig(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/config", identity.RoleClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["poll_interval_seconds"] != float64(3) {
		t.Errorf("poll_interval_seconds = %v, want 3", body["poll_interval_seconds"])
	}
	if body["heartbeat_interval_seconds"] != float64(30) {
		t.Errorf("heartbeat_interval_seconds = %v, want 30", body["heartbeat_interval_seconds"])
	}
}
