//go:build scenario

package circle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/osusu/osusu/internal/services/circle/api/client"
	circleapi "github.com/osusu/osusu/internal/services/circle/api/http"
	"github.com/osusu/osusu/internal/services/circle/engine"
	circlesqlite "github.com/osusu/osusu/internal/services/circle/storage/sqlite"
	councilservice "github.com/osusu/osusu/internal/services/council/service"
	councilsqlite "github.com/osusu/osusu/internal/services/council/storage/sqlite"
)

const (
	grantIssuer   = "scenario-issuer"
	grantAudience = "circle-api"
)

func scenarioTimeout() time.Duration {
	return 10 * time.Second
}

// scenarioEnv runs the full circle API and hands out one authenticated client
// per caller identity.
type scenarioEnv struct {
	server  *httptest.Server
	key     ed25519.PrivateKey
	clients map[string]*client.Client
}

func startCircleAPI(t *testing.T) *scenarioEnv {
	t.Helper()
	dir := t.TempDir()

	circleStore, err := circlesqlite.Open(filepath.Join(dir, "circles.db"))
	if err != nil {
		t.Fatalf("open circle store: %v", err)
	}
	t.Cleanup(func() { circleStore.Close() })

	feed := circleapi.NewFeedHub()
	eng, err := engine.New(engine.Config{Store: circleStore, Publisher: feed})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	councilStore, err := councilsqlite.Open(filepath.Join(dir, "councils.db"))
	if err != nil {
		t.Fatalf("open council store: %v", err)
	}
	t.Cleanup(func() { councilStore.Close() })

	councils, err := councilservice.New(councilStore, nil)
	if err != nil {
		t.Fatalf("new council service: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate grant key: %v", err)
	}

	handler, err := circleapi.NewHandler(circleapi.HandlerConfig{
		Engine:   eng,
		Councils: councils,
		Feed:     feed,
		Grants: circleapi.GrantConfig{
			Issuer:   grantIssuer,
			Audience: grantAudience,
			Key:      pub,
		},
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &scenarioEnv{
		server:  srv,
		key:     priv,
		clients: map[string]*client.Client{},
	}
}

func (env *scenarioEnv) clientFor(t *testing.T, identity string) *client.Client {
	t.Helper()
	if c, ok := env.clients[identity]; ok {
		return c
	}
	c, err := client.New(env.server.URL, signGrant(t, env.key, identity), env.server.Client())
	if err != nil {
		t.Fatalf("new client for %s: %v", identity, err)
	}
	env.clients[identity] = c
	return c
}

func signGrant(t *testing.T, key ed25519.PrivateKey, subject string) string {
	t.Helper()
	encode := func(segment map[string]any) string {
		raw, err := json.Marshal(segment)
		if err != nil {
			t.Fatalf("marshal grant segment: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	unsigned := encode(map[string]any{"alg": "EdDSA", "typ": "JWT"}) + "." + encode(map[string]any{
		"iss": grantIssuer,
		"aud": grantAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"jti": "jti-" + subject,
		"sub": subject,
	})
	signature := ed25519.Sign(key, []byte(unsigned))
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(signature)
}

func repoRoot(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve runtime caller")
	}

	dir := filepath.Dir(filename)
	for {
		candidate := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("go.mod not found from %s", filename)
	return ""
}
