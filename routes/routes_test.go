package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"postboard/avatar"
	"postboard/cache"
	"postboard/fanout"
	"postboard/feed"
	"postboard/handlers"
	"postboard/identity"
	"postboard/ratelimit"
	"postboard/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type server struct {
	t      *testing.T
	router *gin.Engine
	clk    *clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &clock{now: time.Now()}
	st := store.NewMemory(store.WithMemoryClock(clk.Now))
	limiter := ratelimit.New(ratelimit.NewMemoryStore(1024, cache.WithClock(clk.Now)), ratelimit.DefaultConfig(), ratelimit.WithClock(clk.Now))
	tokens := identity.NewTokens("test-secret", time.Hour)
	creds := identity.NewCredentialCache(tokens, 64, time.Minute)
	provider := identity.NewProvider(st, tokens, identity.WithCost(bcrypt.MinCost))
	urls := avatar.NewURLs(avatar.NewMemory(), 64, time.Hour)
	resolver := fanout.NewResolver(st, urls, fanout.DefaultConfig())
	svc := feed.New(st, limiter, resolver, urls, feed.DefaultConfig(), feed.WithClock(clk.Now))

	router := SetupRouter(handlers.New(svc, provider, "test-public-key"), Options{
		Credentials: creds,
		Throttle:    limiter,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	return &server{t: t, router: router, clk: clk}
}

func (s *server) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *server) serve(req *http.Request) (int, map[string]interface{}) {
	s.t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

// write performs a mutating request after stepping past the write limits.
func (s *server) write(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	s.clk.Advance(2 * time.Minute)
	return s.do(method, path, token, body)
}

func (s *server) signup(email string) (token, id string) {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/api/signup", "", map[string]string{"email": email, "password": "hunter22"})
	if code != http.StatusCreated {
		s.t.Fatalf("signup %s: %d %v", email, code, body)
	}
	return body["token"].(string), body["userId"].(string)
}

func (s *server) setupAccount(token, name string) {
	s.t.Helper()
	code, body := s.write(http.MethodPut, "/api/me", token, map[string]string{
		"displayName": name,
		"dateOfBirth": "1990-05-17",
		"location":    "Sydney, Australia",
		"email":       strings.ToLower(name) + "@example.com",
	})
	if code != http.StatusOK {
		s.t.Fatalf("account %s: %d %v", name, code, body)
	}
}

func items(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()
	list, ok := body["items"].([]interface{})
	if !ok {
		t.Fatalf("no items in %v", body)
	}
	return list
}

func TestPostboardFlow(t *testing.T) {
	s := newServer(t)
	alice, aliceID := s.signup("alice@example.com")
	bob, _ := s.signup("bob@example.com")
	s.setupAccount(alice, "Alice")
	s.setupAccount(bob, "Bob")

	code, body := s.write(http.MethodPost, "/api/posts", alice, map[string]string{"content": "Sunrise swim", "location": "Bondi Beach"})
	if code != http.StatusCreated {
		t.Fatalf("create post: %d %v", code, body)
	}
	postID := body["postId"].(string)

	if code, body = s.write(http.MethodPost, "/api/follows/"+aliceID, bob, nil); code != http.StatusCreated {
		t.Fatalf("follow: %d %v", code, body)
	}
	if code, body = s.write(http.MethodPost, "/api/posts/"+postID+"/reactions", bob, map[string]string{"reaction": "UPVOTE"}); code != http.StatusOK {
		t.Fatalf("react: %d %v", code, body)
	}
	if code, body = s.write(http.MethodPost, "/api/posts/"+postID+"/comments", bob, map[string]string{"content": "Brr"}); code != http.StatusCreated {
		t.Fatalf("comment: %d %v", code, body)
	}

	code, body = s.do(http.MethodGet, "/api/feed", bob, nil)
	if code != http.StatusOK {
		t.Fatalf("feed: %d %v", code, body)
	}
	posts := items(t, body)
	if len(posts) != 1 {
		t.Fatalf("feed has %d posts", len(posts))
	}
	post := posts[0].(map[string]interface{})
	author := post["author"].(map[string]interface{})
	reactions := post["reactions"].(map[string]interface{})
	if author["displayName"] != "Alice" || reactions["upvotes"].(float64) != 1 || reactions["reaction"] != "UPVOTE" {
		t.Errorf("post = %v", post)
	}
	if comments := post["comments"].([]interface{}); len(comments) != 1 {
		t.Errorf("comments = %v", comments)
	}

	code, body = s.do(http.MethodGet, "/api/profile/"+aliceID, bob, nil)
	if code != http.StatusOK || body["isFollowing"] != true || body["postCount"].(float64) != 1 {
		t.Errorf("profile: %d %v", code, body)
	}

	code, body = s.do(http.MethodGet, "/api/search?q=bondi", bob, nil)
	if code != http.StatusOK || len(items(t, body)) != 1 {
		t.Errorf("search: %d %v", code, body)
	}

	code, body = s.do(http.MethodGet, "/api/members/"+aliceID+"/posts/"+postID, bob, nil)
	if code != http.StatusOK || body["content"] != "Sunrise swim" {
		t.Errorf("single post: %d %v", code, body)
	}
}

func TestErrors(t *testing.T) {
	s := newServer(t)
	alice, _ := s.signup("alice@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		code   string
		field  string
	}{
		{"anonymous feed", http.MethodGet, "/api/feed", "", nil, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{"bad token", http.MethodGet, "/api/feed", "garbage", nil, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{"limit too large", http.MethodGet, "/api/feed?limit=50", alice, nil, http.StatusBadRequest, "VALIDATION", "limit"},
		{"limit not a number", http.MethodGet, "/api/feed?limit=ten", alice, nil, http.StatusBadRequest, "VALIDATION", "limit"},
		{"long post", http.MethodPost, "/api/posts", alice, map[string]string{"content": strings.Repeat("x", 161), "location": "Bondi Beach"}, http.StatusBadRequest, "VALIDATION", "content"},
		{"short search", http.MethodGet, "/api/search?q=abc", alice, nil, http.StatusBadRequest, "VALIDATION", "query"},
		{"missing post", http.MethodDelete, "/api/posts/507f1f77bcf86cd799439011", alice, nil, http.StatusNotFound, "NOT_FOUND", ""},
		{"bad post id", http.MethodPost, "/api/posts/nope/pin", alice, nil, http.StatusBadRequest, "VALIDATION", "post"},
		{"no account", http.MethodGet, "/api/me", alice, nil, http.StatusNotFound, "NOT_FOUND", ""},
		{"weak password", http.MethodPost, "/api/signup", "", map[string]string{"email": "x@example.com", "password": "123"}, http.StatusBadRequest, "VALIDATION", "Password"},
		{"duplicate signup", http.MethodPost, "/api/signup", "", map[string]string{"email": "alice@example.com", "password": "hunter22"}, http.StatusConflict, "DUPLICATE_ENTITY", ""},
		{"wrong password", http.MethodPost, "/api/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"}, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{"unknown route", http.MethodGet, "/api/nope", "", nil, http.StatusNotFound, "NOT_FOUND", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.write(tt.method, tt.path, tt.token, tt.body)
			if code != tt.status || body["code"] != tt.code {
				t.Fatalf("got %d %v, want %d %s", code, body, tt.status, tt.code)
			}
			if tt.field != "" && body["field"] != tt.field {
				t.Errorf("field = %v, want %s", body["field"], tt.field)
			}
		})
	}
}

func TestCooldown(t *testing.T) {
	s := newServer(t)
	alice, _ := s.signup("alice@example.com")
	s.setupAccount(alice, "Alice")

	code, body := s.write(http.MethodPost, "/api/posts", alice, map[string]string{"content": "one", "location": "Bondi Beach"})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	postID := body["postId"].(string)

	s.clk.Advance(50 * time.Millisecond)
	code, body = s.do(http.MethodPost, "/api/posts/"+postID+"/pin", alice, nil)
	if code != http.StatusTooManyRequests || body["code"] != "RATE_LIMIT" {
		t.Errorf("pin within cooldown: %d %v", code, body)
	}
}

func TestExploreIsPublic(t *testing.T) {
	s := newServer(t)
	alice, _ := s.signup("alice@example.com")
	s.write(http.MethodPost, "/api/posts", alice, map[string]string{"content": "hello", "location": "Bondi Beach"})

	code, body := s.do(http.MethodGet, "/api/explore", "", nil)
	if code != http.StatusOK || len(items(t, body)) != 1 {
		t.Errorf("explore: %d %v", code, body)
	}
}

func TestUploadAvatar(t *testing.T) {
	s := newServer(t)
	alice, _ := s.signup("alice@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("avatar", "me.png")
	part.Write([]byte("\x89PNG fake"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice)
	code, body := s.serve(req)
	if code != http.StatusOK || body["url"] == avatar.Fallback {
		t.Errorf("upload: %d %v", code, body)
	}
}

func TestVapidPublicKey(t *testing.T) {
	s := newServer(t)
	code, body := s.do(http.MethodGet, "/api/vapid-public-key", "", nil)
	if code != http.StatusOK || body["publicKey"] != "test-public-key" {
		t.Errorf("vapid: %d %v", code, body)
	}
}
