package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/core"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// generatePeer serves GET /peer/generate/{space-id}: a deterministic
// did:key derived from the server secret and the space-id, no storage
// touched.
func (h *handler) generatePeer(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	if spaceID == "" {
		writeError(w, tcerr.New(tcerr.BadRequest, "missing space-id path segment"))
		return
	}
	did, err := h.core.GeneratePeer(tctypes.SpaceID(spaceID))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, string(did))
}

// delegate serves POST /delegate: the credential comes in the
// Authorization header, the body is always empty. Responds with the new
// event's CID string on success.
func (h *handler) delegate(w http.ResponseWriter, r *http.Request) {
	raw := authorizationHeader(r)
	if raw == "" {
		writeError(w, tcerr.New(tcerr.MalformedCredential, "missing Authorization header"))
		return
	}
	id, err := h.core.Delegate(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, id)
}

// invoke serves POST /invoke: the credential comes in the Authorization
// header, the body carries a put's content if present. Every other
// request header (bar Authorization and Content-Length) is captured as
// the put's metadata and replayed verbatim on a later get/metadata — the
// same header-passthrough contract the original Rocket routes used.
func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	raw := authorizationHeader(r)
	if raw == "" {
		writeError(w, tcerr.New(tcerr.MalformedCredential, "missing Authorization header"))
		return
	}

	res, err := h.core.Invoke(r.Context(), raw, r.Body, requestMetadata(r))
	if err != nil {
		writeError(w, err)
		return
	}

	switch res.Kind {
	case core.ResultGet:
		writeGetResult(w, res)
	case core.ResultJSON:
		writeJSON(w, http.StatusOK, res.JSON)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func writeGetResult(w http.ResponseWriter, res *core.InvokeResult) {
	if res.Get == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	for k, v := range res.Get.Metadata {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(res.Get.Length, 10))
	w.WriteHeader(http.StatusOK)
	defer res.Get.Content.Close()
	_, _ = io.Copy(w, res.Get.Content)
}

// requestMetadata flattens r's headers into the map pkg/kv attaches to a
// put and replays on a later get — every header but Authorization and
// Content-Length, joining repeated header names with ", " as net/http
// itself does when it serializes them back out.
func requestMetadata(r *http.Request) map[string]string {
	md := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		md[k] = strings.Join(v, ", ")
	}
	return md
}

func authorizationHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Authorization"))
}
