package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/sledljivost/internal/db"
	"github.com/erazemk/sledljivost/internal/events"
	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
	"github.com/erazemk/sledljivost/internal/store"
)

const testJWTSecret = "test-secret"

const (
	ownerAccount    = model.Account("0x00000000000000000000000000000000000000a1")
	mfrAccount      = model.Account("0x00000000000000000000000000000000000000b2")
	pharmacyAccount = model.Account("0x00000000000000000000000000000000000000c3")
)

type testEnv struct {
	server *httptest.Server
	db     *sqlx.DB
	engine *ledger.Engine
}

func newTestEnv(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	hub := events.NewHub()

	engine, err := ledger.Open(context.Background(), store.NewLedgerStore(database), ownerAccount,
		ledger.WithNotifier(events.NewHubNotifier(hub)))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}

	router := NewRouter(Config{
		DB:        database,
		Engine:    engine,
		Hub:       hub,
		JWTSecret: testJWTSecret,
		Limiter:   limiter,
	})
	server := httptest.NewServer(RequestLogger(router))
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: database, engine: engine}
}

// login creates a user and returns a token for it.
func (e *testEnv) login(t *testing.T, username, role string, account model.Account) string {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), e.db, username, string(hash), role, account); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	resp := e.do(t, "POST", "/api/auth/login", "", map[string]string{"username": username, "password": "password"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp loginResponse
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}
	return loginResp.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		body.ReadFrom(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, strings.TrimSpace(body.String()))
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func validProduct() map[string]any {
	return map[string]any{
		"name":              "Amoxicillin 500mg",
		"batch_number":      "AMX-2024-001",
		"manufacturer_name": "Krka d.d.",
		"quantity":          1000,
		"mfg_date":          "2024-01-15",
		"expiry_date":       "2026-01-15",
		"category":          "Antibiotic",
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t, "admin", model.RoleAdmin, ownerAccount)

	resp := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestPublicReadsAndProtectedWrites(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "GET", "/api/ledger", "", nil)
	expectStatus(t, resp, http.StatusOK)
	info := decode[ledgerResponse](t, resp)
	if info.Owner != ownerAccount || info.NextProductID != 1 {
		t.Errorf("unexpected ledger info: %+v", info)
	}

	resp = env.do(t, "POST", "/api/products", "", validProduct())
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/products", "garbage", validProduct())
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

}

func TestHealthReportsSchemaVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "GET", "/api/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	health := decode[healthResponse](t, resp)
	if health.Status != "ok" || health.SchemaVersion != 2 {
		t.Errorf("unexpected health: %+v", health)
	}

	if _, err := env.db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	resp = env.do(t, "GET", "/api/health", "", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	userToken := env.login(t, "user1", model.RoleUser, mfrAccount)

	resp := env.do(t, "GET", "/api/users", userToken, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	adminToken := env.login(t, "admin", model.RoleAdmin, ownerAccount)
	resp = env.do(t, "POST", "/api/users", adminToken, map[string]string{
		"username": "pharmacy",
		"password": "longenough",
		"role":     model.RoleUser,
		"account":  "0x00000000000000000000000000000000000000C3",
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[model.User](t, resp)
	if created.Account != pharmacyAccount {
		t.Errorf("expected normalized account %q, got %q", pharmacyAccount, created.Account)
	}

	resp = env.do(t, "POST", "/api/users", adminToken, map[string]string{
		"username": "bad",
		"password": "longenough",
		"role":     "manager",
		"account":  "nope",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	verr := decode[validationResponse](t, resp)
	if len(verr.Fields) != 2 {
		t.Errorf("expected role and account errors, got %+v", verr.Fields)
	}
}

func TestCustodyFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.login(t, "owner", model.RoleAdmin, ownerAccount)
	mfrToken := env.login(t, "krka", model.RoleUser, mfrAccount)
	pharmacyToken := env.login(t, "lekarna", model.RoleUser, pharmacyAccount)

	// Not yet authorized.
	resp := env.do(t, "POST", "/api/products", mfrToken, validProduct())
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Only the owner may authorize.
	resp = env.do(t, "PUT", "/api/manufacturers/"+string(mfrAccount), mfrToken, map[string]bool{"authorized": true})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.do(t, "PUT", "/api/manufacturers/"+string(mfrAccount), ownerToken, map[string]bool{"authorized": true})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/products", mfrToken, validProduct())
	expectStatus(t, resp, http.StatusCreated)
	product := decode[model.Product](t, resp)
	if product.ID != 1 || product.CurrentHolder != mfrAccount || !product.IsAuthentic {
		t.Fatalf("unexpected product: %+v", product)
	}

	// Pharmacy is not the holder yet.
	resp = env.do(t, "POST", "/api/products/1/transfers", pharmacyToken, map[string]string{
		"to": string(pharmacyAccount), "location": "Ljubljana",
	})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.do(t, "POST", "/api/products/1/transfers", mfrToken, map[string]string{
		"to": string(pharmacyAccount), "location": "Ljubljana central warehouse",
	})
	expectStatus(t, resp, http.StatusOK)
	moved := decode[model.Product](t, resp)
	if moved.CurrentHolder != pharmacyAccount {
		t.Errorf("expected holder %q, got %q", pharmacyAccount, moved.CurrentHolder)
	}

	resp = env.do(t, "POST", "/api/products/99/transfers", mfrToken, map[string]string{
		"to": string(pharmacyAccount), "location": "Nowhere",
	})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/products/1/history", "", nil)
	expectStatus(t, resp, http.StatusOK)
	history := decode[[]model.Transfer](t, resp)
	if len(history) != 1 || history[0].From != mfrAccount || history[0].To != pharmacyAccount || !history[0].Verified {
		t.Errorf("unexpected history: %+v", history)
	}

	resp = env.do(t, "GET", "/api/products/2/history", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if empty := decode[[]model.Transfer](t, resp); empty == nil || len(empty) != 0 {
		t.Errorf("expected empty history array, got %v", empty)
	}

	resp = env.do(t, "GET", "/api/holders/"+string(pharmacyAccount)+"/products", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if held := decode[holderResponse](t, resp); len(held.ProductIDs) != 1 || held.ProductIDs[0] != 1 {
		t.Errorf("unexpected holder products: %+v", held)
	}

	resp = env.do(t, "GET", "/api/manufacturers/"+string(mfrAccount), "", nil)
	expectStatus(t, resp, http.StatusOK)
	mfr := decode[manufacturerResponse](t, resp)
	if !mfr.Authorized || len(mfr.ProductIDs) != 1 {
		t.Errorf("unexpected manufacturer view: %+v", mfr)
	}

	resp = env.do(t, "GET", "/api/products?ids=1,2", "", nil)
	expectStatus(t, resp, http.StatusOK)
	batch := decode[map[string]*model.Product](t, resp)
	if batch["1"] == nil || batch["1"].CurrentHolder != pharmacyAccount {
		t.Errorf("expected product 1 in batch verify, got %+v", batch["1"])
	}
	if p, ok := batch["2"]; !ok || p != nil {
		t.Errorf("expected explicit null for product 2, got %+v (present=%v)", p, ok)
	}

	resp = env.do(t, "GET", "/api/products?batch=AMX-2024-001", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if byBatch := decode[batchResponse](t, resp); len(byBatch.ProductIDs) != 1 {
		t.Errorf("unexpected batch lookup: %+v", byBatch)
	}

	resp = env.do(t, "GET", "/api/products/42", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestRegisterProductValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.login(t, "owner", model.RoleAdmin, ownerAccount)

	tests := []struct {
		name  string
		field string
		value any
	}{
		{"lowercase batch", "batch_number", "amx-1"},
		{"short name", "name", "A"},
		{"zero quantity", "quantity", 0},
		{"huge quantity", "quantity", 1000001},
		{"bad date", "mfg_date", "15.01.2024"},
		{"expiry before mfg", "expiry_date", "2023-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validProduct()
			body[tt.field] = tt.value

			resp := env.do(t, "POST", "/api/products", ownerToken, body)
			expectStatus(t, resp, http.StatusBadRequest)
			verr := decode[validationResponse](t, resp)
			if len(verr.Fields) != 1 || verr.Fields[0].Field != tt.field {
				t.Errorf("expected one error on %s, got %+v", tt.field, verr.Fields)
			}
		})
	}

	if next := env.engine.NextProductID(); next != 1 {
		t.Errorf("rejected requests must not register products, next id is %d", next)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "owner", model.RoleAdmin, ownerAccount)

	resp := env.do(t, "POST", "/api/auth/logout", token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/users", token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestDeletedUserTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	adminToken := env.login(t, "owner", model.RoleAdmin, ownerAccount)
	userToken := env.login(t, "krka", model.RoleUser, mfrAccount)

	resp := env.do(t, "DELETE", "/api/users/2", adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, "PUT", "/api/auth/password", userToken, map[string]string{
		"current_password": "password", "new_password": "newpassword",
	})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.do(t, "DELETE", "/api/users/1", adminToken, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.login(t, "owner", model.RoleAdmin, ownerAccount)

	resp, err := http.Get(env.server.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", env.server.URL+"/api/events?token="+ownerToken, nil)
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Body.Close()
	expectStatus(t, stream, http.StatusOK)
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	lines := bufio.NewReader(stream.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := lines.ReadString('\n')
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	if event, _ := readEvent(); event != "connected" {
		t.Fatalf("expected connected event, got %q", event)
	}

	resp = env.do(t, "PUT", "/api/manufacturers/"+string(mfrAccount), ownerToken, map[string]bool{"authorized": true})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	event, data := readEvent()
	if event != string(events.EventManufacturerAuthorized) {
		t.Fatalf("expected %s, got %q", events.EventManufacturerAuthorized, event)
	}
	var payload events.ManufacturerAuthorizedEvent
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if payload.Manufacturer != mfrAccount || !payload.Authorized {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestRateLimitedReads(t *testing.T) {
	env := newTestEnv(t, NewRateLimiter(1, 1))

	resp := env.do(t, "GET", "/api/ledger", "", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/ledger", "", nil)
	expectStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()
}

func uploadImage(t *testing.T, env *testEnv, path, token string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "label.png")
	part.Write(data)
	mw.Close()

	req, _ := http.NewRequest("PUT", env.server.URL+path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestProductLabelImage(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.login(t, "owner", model.RoleAdmin, ownerAccount)
	otherToken := env.login(t, "lekarna", model.RoleUser, pharmacyAccount)

	resp := env.do(t, "POST", "/api/products", ownerToken, validProduct())
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	var pic bytes.Buffer
	png.Encode(&pic, image.NewNRGBA(image.Rect(0, 0, 40, 20)))

	resp = env.do(t, "GET", "/api/products/1/image", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = uploadImage(t, env, "/api/products/1/image", otherToken, pic.Bytes())
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = uploadImage(t, env, "/api/products/1/image", ownerToken, []byte("not an image"))
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = uploadImage(t, env, "/api/products/1/image", ownerToken, pic.Bytes())
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, "GET", "/api/products/1/image", "", nil)
	expectStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	cfg, err := png.DecodeConfig(resp.Body)
	if err != nil {
		t.Fatalf("decoding stored image: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 20 {
		t.Errorf("expected 40x20, got %dx%d", cfg.Width, cfg.Height)
	}
}
