package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/prefs"
	"github.com/confapp/schedstore/internal/syncer"
)

// Handler bridges data-layer events to dashboard broadcasts. Wire it to a
// syncer's OnImported hook and a prefs subscription.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a handler bound to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnImported broadcasts a completed schedule import.
func (h *Handler) OnImported(schedule *model.Schedule) {
	h.send(MessageTypeImport, ImportData{
		Conference: schedule.Conference,
		Year:       schedule.Year,
		Days:       len(schedule.Days),
		Events:     schedule.EventCount(),
		Tracks:     len(schedule.Tracks()),
	})
}

// OnSyncStatus broadcasts the synchronizer's counters.
func (h *Handler) OnSyncStatus(status syncer.Status) {
	h.send(MessageTypeSyncStatus, status)
}

// OnPrefsChange broadcasts favorite mutations; playback and reload changes
// are not interesting to observers and are dropped.
func (h *Handler) OnPrefsChange(c prefs.Change) {
	switch c.Kind {
	case prefs.TrackFavored:
		h.send(MessageTypeFavorite, FavoriteData{Kind: "track", Track: c.Track, Added: true})
	case prefs.TrackUnfavored:
		h.send(MessageTypeFavorite, FavoriteData{Kind: "track", Track: c.Track, Added: false})
	case prefs.EventFavored:
		h.send(MessageTypeFavorite, FavoriteData{Kind: "event", EventID: c.EventID, Added: true})
	case prefs.EventUnfavored:
		h.send(MessageTypeFavorite, FavoriteData{Kind: "event", EventID: c.EventID, Added: false})
	}
}

func (h *Handler) send(typ MessageType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      raw,
	})
}
