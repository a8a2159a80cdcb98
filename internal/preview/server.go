// Package preview serves a live document over HTTP. Data writes and marker
// changes arrive as HTTP requests, and every render pass is pushed to
// websocket clients as the serialized document.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/gnituy18/literal"
)

const shutdownTimeout = 5 * time.Second

var errNotFound = errors.New("element not found")

// Update is one published document state.
type Update struct {
	HTML string    `json:"html"`
	At   time.Time `json:"at"`
}

type Server struct {
	doc      *literal.Document
	obs      *literal.Observer
	loop     *literal.Loop
	logger   *slog.Logger
	interval time.Duration
	router   *mux.Router

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func New(doc *literal.Document, cfg *literal.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		doc:      doc,
		loop:     literal.NewLoop(doc),
		logger:   logger,
		interval: cfg.Serve.PublishInterval,
		subs:     map[chan string]struct{}{},
	}

	opts, err := cfg.Options(logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, literal.WithRenderHook(s.onRender))
	s.obs = literal.New(doc, opts...)

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveDocument).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/elements", s.appendElements).Methods(http.MethodPost)
	r.HandleFunc("/elements/{id}", s.serveElement).Methods(http.MethodGet)
	r.HandleFunc("/elements/{id}/data", s.writeData).Methods(http.MethodPut)
	r.HandleFunc("/elements/{id}/marker", s.setMarker).Methods(http.MethodPut)
	r.HandleFunc("/elements/{id}/marker", s.removeMarker).Methods(http.MethodDelete)
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// RunLoop runs the document loop and starts the observer on it. It returns
// when ctx is done.
func (s *Server) RunLoop(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.loop.Run(groupCtx)
	})
	group.Go(func() error {
		return s.loop.Do(groupCtx, s.obs.Start)
	})
	return group.Wait()
}

// ListenAndServe serves addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.RunLoop(groupCtx)
	})
	group.Go(func() error {
		s.logger.Info("preview listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// onRender runs on the loop goroutine after every render pass.
func (s *Server) onRender(el *html.Node, err error) {
	doc := s.doc.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		offerLatest(sub, doc)
	}
}

// offerLatest replaces whatever sub still holds with v.
func offerLatest(sub chan string, v string) {
	select {
	case sub <- v:
		return
	default:
	}
	select {
	case <-sub:
	default:
	}
	select {
	case sub <- v:
	default:
	}
}

func (s *Server) subscribe() chan string {
	sub := make(chan string, 1)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Server) unsubscribe(sub chan string) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request) {
	var doc string
	if err := s.loop.Do(r.Context(), func() error {
		doc = s.doc.String()
		return nil
	}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, doc)
}

type elementView struct {
	ID     string         `json:"id"`
	Active bool           `json:"active"`
	Slots  []literal.Slot `json:"slots"`
	Data   map[string]any `json:"data"`
}

func (s *Server) serveElement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var view elementView
	err := s.withElement(r.Context(), id, func(el *html.Node) error {
		view = elementView{
			ID:     id,
			Active: s.obs.Active(el),
			Slots:  s.obs.Slots(el),
			Data:   s.obs.Data(el).Snapshot(),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, fmt.Sprintf("decode data: %v", err), http.StatusBadRequest)
		return
	}

	err := s.withElement(r.Context(), id, func(el *html.Node) error {
		return s.obs.Data(el).SetMany(values)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setMarker(w http.ResponseWriter, r *http.Request) {
	err := s.withElement(r.Context(), mux.Vars(r)["id"], func(el *html.Node) error {
		s.doc.SetAttribute(el, s.obs.Marker(), "")
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMarker(w http.ResponseWriter, r *http.Request) {
	err := s.withElement(r.Context(), mux.Vars(r)["id"], func(el *html.Node) error {
		s.doc.RemoveAttribute(el, s.obs.Marker())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendElements(w http.ResponseWriter, r *http.Request) {
	markup, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.loop.Do(r.Context(), func() error {
		_, err := s.doc.AppendHTML(s.doc.Body(), string(markup))
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	sub := s.subscribe()
	defer s.unsubscribe(sub)

	updates := channerics.Convert(r.Context().Done(), sub, func(doc string) Update {
		return Update{HTML: doc, At: time.Now()}
	})

	cli, err := newClient(updates, s.interval, w, r)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	if err := cli.Sync(); err != nil {
		s.logger.Warn("websocket client ended", "error", err.Error())
	}
}

// withElement runs fn on the loop with the element whose id attribute is id.
func (s *Server) withElement(ctx context.Context, id string, fn func(el *html.Node) error) error {
	return s.loop.Do(ctx, func() error {
		el := s.doc.ElementByID(id)
		if el == nil {
			return fmt.Errorf("%w: %s", errNotFound, id)
		}
		return fn(el)
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, literal.ErrInvalidKey), errors.Is(err, literal.ErrReservedKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
