package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeRelay imitates the relay service: it echoes sender connections, hands
// listener control channels to the test, and serves rendezvous addresses.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	controls   chan *websocket.Conn
	controlIn  chan []byte
	rendezvous chan string
	closed     chan string

	mu      sync.Mutex
	headers []http.Header
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{
		controls:   make(chan *websocket.Conn, 4),
		controlIn:  make(chan []byte, 16),
		rendezvous: make(chan string, 16),
		closed:     make(chan string, 16),
	}
	fr.srv = httptest.NewServer(http.HandlerFunc(fr.serveHTTP))
	t.Cleanup(fr.srv.Close)
	return fr
}

// url is the ws:// base used as the endpoint namespace
func (fr *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func (fr *fakeRelay) endpoint(name string) *Endpoint {
	return &Endpoint{
		Namespace: fr.url(),
		Name:      name,
		Tokens:    StaticTokenSource("SharedAccessSignature sr=test&sig=x&se=1&skn=k"),
	}
}

func (fr *fakeRelay) lastHeader() http.Header {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if len(fr.headers) == 0 {
		return nil
	}
	return fr.headers[len(fr.headers)-1]
}

func (fr *fakeRelay) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/rendezvous/"):
		id := strings.TrimPrefix(r.URL.Path, "/rendezvous/")
		ws, err := fr.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fr.rendezvous <- id
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		echo(ws)
		fr.closed <- id

	case strings.HasPrefix(r.URL.Path, "/$hc/"):
		fr.mu.Lock()
		fr.headers = append(fr.headers, r.Header.Clone())
		fr.mu.Unlock()

		name := strings.TrimPrefix(r.URL.Path, "/$hc/")
		if name == "denied" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ws, err := fr.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		switch r.URL.Query().Get("sb-hc-action") {
		case "listen":
			fr.controls <- ws
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				fr.controlIn <- data
			}
		case "connect":
			if name == "closer" {
				_ = ws.WriteMessage(websocket.BinaryMessage, []byte("bye"))
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = ws.WriteMessage(websocket.CloseMessage, msg)
				_, _, _ = ws.ReadMessage()
				_ = ws.Close()
				return
			}
			echo(ws)
		default:
			_ = ws.Close()
		}

	default:
		http.NotFound(w, r)
	}
}

func echo(ws *websocket.Conn) {
	defer ws.Close()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, data); err != nil {
			return
		}
	}
}
