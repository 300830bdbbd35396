package publisher

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// DefaultAddr is the push channel's listen address.
const DefaultAddr = "localhost:8765"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSender adapts a *websocket.Conn to the Sender interface: every
// frame, including the literal "clear_cache" string, goes out as a text
// frame.
type wsSender struct {
	conn *websocket.Conn
}

func (s wsSender) Send(frame []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s wsSender) Close() error {
	return s.conn.Close()
}

// Server exposes the publisher over a websocket endpoint.
type Server struct {
	addr string
	pub  *Publisher
}

// NewServer builds a Server bound to addr, serving pub's push frames.
func NewServer(addr string, pub *Publisher) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{addr: addr, pub: pub}
}

// Run starts the HTTP listener and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.pub.Subscribe(r.Context(), wsSender{conn: conn})
}
