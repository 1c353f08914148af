// Package api exposes a running peer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/node"
	"github.com/rfratto/chordkit/peer"
)

// Node is the peer served by the API. It is implemented by *node.Node.
type Node interface {
	Info() peer.Info
	Predecessor() peer.Info
	Fingers() peer.FingerTable
	Shard() []peer.Entry
	State() peer.State

	AddEntry(ctx context.Context, e peer.Entry) ([]peer.Info, error)
	Lookup(ctx context.Context, word string) (node.Result, error)
}

var _ Node = (*node.Node)(nil)

// API converts HTTP requests into calls to a Node.
type API struct {
	n Node
}

// New returns a new API serving n and registers its routes on r.
func New(n Node, r *mux.Router) *API {
	api := &API{n: n}

	r.HandleFunc("/api/info", api.info).Methods(http.MethodGet)
	r.HandleFunc("/api/fingers", api.fingers).Methods(http.MethodGet)
	r.HandleFunc("/api/shard", api.shard).Methods(http.MethodGet)
	r.HandleFunc("/api/entries/{word}", api.lookup).Methods(http.MethodGet)
	r.HandleFunc("/api/entries/{word}", api.add).Methods(http.MethodPost, http.MethodPut)

	return api
}

// InfoResponse is returned by /api/info.
type InfoResponse struct {
	Peer        peer.Info `json:"peer"`
	Predecessor peer.Info `json:"predecessor"`
	State       string    `json:"state"`
}

// EntryResponse is returned by /api/entries/{word}.
type EntryResponse struct {
	Entry *peer.Entry `json:"entry,omitempty"`
	Path  []peer.Info `json:"path"`
}

func (a *API) info(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, InfoResponse{
		Peer:        a.n.Info(),
		Predecessor: a.n.Predecessor(),
		State:       a.n.State().String(),
	})
}

func (a *API) fingers(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, a.n.Fingers())
}

func (a *API) shard(rw http.ResponseWriter, r *http.Request) {
	entries := a.n.Shard()
	if entries == nil {
		entries = []peer.Entry{}
	}
	writeJSON(rw, http.StatusOK, entries)
}

func (a *API) lookup(rw http.ResponseWriter, r *http.Request) {
	word := strings.TrimSpace(mux.Vars(r)["word"])
	if word == "" {
		http.Error(rw, "word argument missing", http.StatusBadRequest)
		return
	}

	res, err := a.n.Lookup(r.Context(), word)
	switch {
	case err != nil:
		writeError(rw, err)
	case !res.Found:
		writeJSON(rw, http.StatusNotFound, EntryResponse{Path: res.Path})
	default:
		writeJSON(rw, http.StatusOK, EntryResponse{Entry: &res.Entry, Path: res.Path})
	}
}

func (a *API) add(rw http.ResponseWriter, r *http.Request) {
	word := mux.Vars(r)["word"]

	var sb strings.Builder
	if _, err := io.Copy(&sb, r.Body); err != nil {
		http.Error(rw, fmt.Sprintf("failed to read body: %s", err), http.StatusBadRequest)
		return
	}

	e := peer.NewEntry(word, sb.String())
	if e.Key == "" || e.Value == "" {
		http.Error(rw, "word and definition are required", http.StatusBadRequest)
		return
	}

	path, err := a.n.AddEntry(r.Context(), e)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, EntryResponse{Entry: &e, Path: path})
}

func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chordkit.ErrNotJoined):
		status = http.StatusServiceUnavailable
	case errors.As(err, &chordkit.ErrResolutionTimeout{}):
		status = http.StatusGatewayTimeout
	case errors.As(err, &chordkit.ErrResolution{}), errors.As(err, &chordkit.ErrPeerUnreachable{}):
		status = http.StatusBadGateway
	}
	http.Error(rw, err.Error(), status)
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
