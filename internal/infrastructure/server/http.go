package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type HTTPServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		handler: handler,
	}
}

func (h *HTTPServer) Start(ctx context.Context) error {
	h.srv = &http.Server{
		Addr:    h.addr,
		Handler: h.handler,
		// No WriteTimeout: long-lived websocket connections outlast any
		// sane response deadline.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var eg errgroup.Group
	eg.Go(func() error {
		err := h.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
