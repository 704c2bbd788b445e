// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package debughttp exposes a read-only JSON introspection surface over a
// VsMgmt handle, built on go-chi the way the teacher exposes its own debug
// and JSON-RPC surfaces. Never mounted by default; callers opt in
// explicitly (e.g. from cmd/vsdbctl serve-debug).
package debughttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vsdb-go/vsdb/vmkm"
)

// NewHandler builds the chi router for the debug surface.
func NewHandler(m *vmkm.VsMgmt) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/branches", func(w http.ResponseWriter, req *http.Request) {
		names, err := m.BranchList(req.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, names)
	})

	r.Get("/branches/{name}/versions", func(w http.ResponseWriter, req *http.Request) {
		branch := vmkm.BranchName(chi.URLParam(req, "name"))
		has, err := m.BranchHasVersions(req.Context(), branch)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]bool{"has_versions": has})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	writeJSON(w, map[string]string{"error": err.Error()})
}

// Serve runs the debug HTTP server until ctx is done.
func Serve(ctx context.Context, addr string, m *vmkm.VsMgmt) error {
	srv := &http.Server{Addr: addr, Handler: NewHandler(m)}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
