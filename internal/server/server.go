package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/toastate/frontpipe/internal/metrics"
	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/tlogger"

	_ "embed"
)

//go:embed livereload.html
var liveReloadScript []byte

const (
	LiveReloadPath = "/__internal/livereload"
	MetricsPath    = "/__internal/metrics"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		w.WriteHeader(500)
	},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves the project root and pushes reload requests to the pages
// it served.
type Server struct {
	rootDir     string
	host        string
	port        string
	override404 string
	broker      *reload.Broker
}

func NewServer(rootDir, host string, port int, override404 string) *Server {
	if override404 != "" && !strings.HasPrefix(override404, "/") {
		override404 = "/" + override404
	}
	return &Server{
		rootDir:     rootDir,
		host:        host,
		port:        strconv.Itoa(port),
		override404: override404,
		broker:      reload.NewBroker(),
	}
}

// Reload forwards k to every connected page.
func (s *Server) Reload(k reload.Kind) {
	if k == reload.None {
		return
	}
	tlogger.Debug("msg", "Reload", "kind", k, "clients", s.broker.Subscribers())
	s.broker.Reload(k)
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(LiveReloadPath, s.livereloadHandler)
	r.Handle(MetricsPath, metrics.Handler())
	r.PathPrefix("/").HandlerFunc(s.fileServer)
	return r
}

// Start listens until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    net.JoinHostPort(s.host, s.port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// We use println here so the address can be copied or opened directly from the terminal
	fmt.Println("Listening on http://" + srv.Addr)

	select {
	case err := <-errCh:
		s.broker.Close()
		return err
	case <-ctx.Done():
	}

	s.broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	if err := <-errCh; err != http.ErrServerClosed {
		return err
	}
	return nil
}

func internalError(w http.ResponseWriter, msg string, err error) {
	w.WriteHeader(500)
	w.Write([]byte("Internal error: " + msg + ": " + err.Error()))
}

// resolve finds the file served for upath: the file itself, then the same
// name with .html, then the index.html of the folder.
func (s *Server) resolve(upath string) (string, bool, error) {
	const indexPage = "index.html"

	fullName := filepath.Join(s.rootDir, filepath.FromSlash(path.Clean(upath)))
	candidates := []string{fullName, fullName + ".html", filepath.Join(fullName, indexPage)}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, err
		}
		if !info.IsDir() {
			return c, true, nil
		}
	}
	return "", false, nil
}

func (s *Server) fileServer(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}

	fullName, found, err := s.resolve(upath)
	if err != nil {
		internalError(w, "can't open file", err)
		return
	}

	status := http.StatusOK
	if !found && s.override404 != "" && upath != s.override404 {
		fullName, found, err = s.resolve(s.override404)
		if err != nil {
			internalError(w, "can't open file", err)
			return
		}
		status = http.StatusNotFound
	}
	if !found {
		w.WriteHeader(404)
		w.Write([]byte("404 page not found"))
		return
	}

	content, err := os.Open(fullName)
	if err != nil {
		internalError(w, "can't open file", err)
		return
	}
	defer content.Close()

	ctype := mime.TypeByExtension(filepath.Ext(fullName))
	if ctype == "" {
		// read a chunk to decide between utf-8 text and binary
		var buf [512]byte
		n, _ := io.ReadFull(content, buf[:])
		ctype = http.DetectContentType(buf[:n])
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			internalError(w, "can't seek file", err)
			return
		}
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	io.Copy(w, content)
	if strings.HasPrefix(ctype, "text/html") {
		if _, err := w.Write(liveReloadScript); err != nil {
			tlogger.Error("msg", "could not live reload", "error", err)
		}
	}
}

func (s *Server) livereloadHandler(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	tlogger.Debug("msg", "WS Established")

	waitCh := s.broker.Subscribe()
	defer s.broker.Unsubscribe(waitCh)

	// the page never writes, reading only notices it left
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case k, ok := <-waitCh:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(k.String())); err != nil {
				tlogger.Warn("msg", "Reload socket error", "error", err)
				return
			}
		}
	}
}
