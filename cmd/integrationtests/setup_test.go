package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/notify"
	"auction-settlement/internal/objectstore"
	"auction-settlement/internal/repository"
	"auction-settlement/internal/server"
	"auction-settlement/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "integration-secret"

// inbox keeps every mail the engine sends
type inbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (i *inbox) Send(_ context.Context, msg notify.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sent = append(i.sent, msg)
	return nil
}

// codeFor returns the newest code mailed to address with template
func (i *inbox) codeFor(t *testing.T, address, template string) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	for j := len(i.sent) - 1; j >= 0; j-- {
		if i.sent[j].To == address && i.sent[j].Template == template {
			return i.sent[j].Data["code"]
		}
	}
	t.Fatalf("no %s mail for %s", template, address)
	return ""
}

// testApp is the full HTTP stack over an in-memory store
type testApp struct {
	router     *gin.Engine
	inbox      *inbox
	adminToken string
}

// SetupTestApp initializes the router with in-memory backends for integration testing.
func SetupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewJWTMaker(testSecret, time.Hour)
	mail := &inbox{}
	files := objectstore.NewMemoryStore("http://localhost/files")

	engine, err := settlement.New(settlement.Deps{
		Store:   repository.NewMemoryRepo(),
		Tokens:  tokens,
		Mailer:  mail,
		Objects: files,
	}, settlement.Options{
		StoreTimeout: 2 * time.Second,
		HashCost:     bcrypt.MinCost,
	})
	require.NoError(t, err)

	adminToken, err := tokens.GenerateToken("admin", auth.RoleAdmin)
	require.NoError(t, err)

	router := server.SetupRouter(server.RouterDeps{
		Service: engine,
		Tokens:  tokens,
		Files:   files,
	})
	return &testApp{router: router, inbox: mail, adminToken: adminToken}
}

// ExecuteRequestAndParse executes an HTTP request on the app router and parses the response
func (a *testApp) ExecuteRequestAndParse(t *testing.T, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	a.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp, w
}

// data returns the "data" object of a successful response
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}
