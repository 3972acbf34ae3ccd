package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bmcheck.local/internal/app/existing"
	"bmcheck.local/internal/platform/httpmiddleware"
	"github.com/go-chi/chi/v5"
)

const ownerHeader = "X-Owner-ID"

type InvalidateRequest struct {
	URL string `json:"url"`
}

// NewCheckHandler GET /bookmarks/check?url=&title=
//
// 200 返回 Resolution（包括 ok=false 的"暂时无法判断"）；
// 同一 owner 的新请求取代本请求时返回 409。
func NewCheckHandler(svc Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := existing.LookupRequest{
			URL:     strings.TrimSpace(q.Get("url")),
			Title:   q.Get("title"),
			OwnerID: ownerOf(r, r.Header.Get(ownerHeader), q.Get("owner")),
		}
		if req.URL == "" {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "url is required")
			return
		}

		res, err := svc.Check(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, res)
		case errors.Is(err, existing.ErrAborted):
			httpmiddleware.WriteError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, existing.ErrEmptyURL):
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "url is required")
		default:
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "check failed")
		}
	}
}

// NewInvalidateHandler POST /bookmarks/invalidate {"url": "..."}
// 扩展保存书签之后调用，让下一次查询直接看到新书签。
func NewInvalidateHandler(svc Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InvalidateRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		if err := dec.Decode(&req); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "url is required")
			return
		}
		svc.Invalidate(req.URL)
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewCancelOwnerHandler DELETE /owners/{owner}，tab 关闭时调用。
// 没有待取消的请求也返回 204。
func NewCancelOwnerHandler(svc Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerOf(r, chi.URLParam(r, "owner"), "")
		svc.CancelOwner(owner)
		w.WriteHeader(http.StatusNoContent)
	}
}
