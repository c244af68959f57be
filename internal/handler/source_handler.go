package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/socialdev-club/soticle/internal/source"
)

// SourceHandler は掲載元レジストリのHTTPハンドラー。
type SourceHandler struct{}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler() *SourceHandler {
	return &SourceHandler{}
}

// sourceEntryResponse は掲載元レジストリのエントリレスポンス。
// labelは検索ボックスのサジェストに使用する「表示名 (キー)」形式。
type sourceEntryResponse struct {
	Key               string `json:"key"`
	Name              string `json:"name"`
	Label             string `json:"label"`
	Favicon           string `json:"favicon,omitempty"`
	FallbackThumbnail string `json:"fallback_thumbnail,omitempty"`
}

// ListSources は登録済み掲載元の一覧をキーの辞書順で返す。
// GET /api/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	entries := source.RegistryEntries()

	results := make([]sourceEntryResponse, len(entries))
	for i, e := range entries {
		results[i] = sourceEntryResponse{
			Key:               e.Key,
			Name:              e.Source.Name,
			Label:             fmt.Sprintf("%s (%s)", e.Source.Name, e.Key),
			Favicon:           e.Source.Favicon,
			FallbackThumbnail: e.Source.FallbackThumbnail,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
