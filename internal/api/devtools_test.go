package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/giftcard-mini/internal/proxy"
	"github.com/shehryarbajwa/giftcard-mini/internal/session"
)

// devtoolsBrowser accepts DevTools websockets on any path and reports the
// path it was dialed on.
func devtoolsBrowser(t *testing.T, paths chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/shared"
}

func TestDevtools_EachSessionReachesOnlyItsOwnPage(t *testing.T) {
	paths := make(chan string, 2)
	endpoint := devtoolsBrowser(t, paths)
	ts := newRoutedServer(t, func(m *session.Manager) Routes {
		return Routes{Proxy: proxy.NewServer(m, func() string { return endpoint }, nil, nil)}
	})

	ctx := context.Background()
	ids := make([]string, 2)
	for i := range ids {
		id, err := ts.manager.CreateSession(ctx, session.Credentials{CardNumber: testCard, PIN: "1234"})
		require.NoError(t, err)
		ids[i] = id
	}

	base := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/v1/sessions/"
	for _, id := range ids {
		conn, _, err := websocket.DefaultDialer.Dial(base+id+"/devtools", nil)
		require.NoError(t, err)
		conn.Close()
	}

	handles := ts.provider.Handles()
	require.Len(t, handles, 2)
	assert.Equal(t, "/devtools/page/"+handles[0].Target, <-paths)
	assert.Equal(t, "/devtools/page/"+handles[1].Target, <-paths)
}

func TestDevtools_UnknownSession(t *testing.T) {
	paths := make(chan string, 1)
	endpoint := devtoolsBrowser(t, paths)
	ts := newRoutedServer(t, func(m *session.Manager) Routes {
		return Routes{Proxy: proxy.NewServer(m, func() string { return endpoint }, nil, nil)}
	})

	_, res, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/v1/sessions/ffffffff/devtools", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Empty(t, paths)
}
