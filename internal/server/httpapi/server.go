// Package httpapi exposes the engine over HTTP: REST endpoints for rooms,
// items and the upload sub-protocol, plus the room websocket carrying the
// live event set.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/akarpovs/roomdrop/internal/common"
	"github.com/akarpovs/roomdrop/internal/logging"
	"github.com/akarpovs/roomdrop/internal/protocol"
	"github.com/akarpovs/roomdrop/internal/server/auth"
	sc "github.com/akarpovs/roomdrop/internal/server/config"
	"github.com/akarpovs/roomdrop/internal/server/hub"
	"github.com/akarpovs/roomdrop/internal/server/models"
	"github.com/akarpovs/roomdrop/internal/server/services"
)

const maxBodyBytes = 1 << 20

type Server struct {
	rooms   *services.RoomService
	items   *services.ItemService
	uploads *services.UploadService
	hub     *hub.Hub
	config  *sc.Config
	log     logging.Logger
}

func NewServer(rooms *services.RoomService, items *services.ItemService, uploads *services.UploadService,
	h *hub.Hub, config *sc.Config, log logging.Logger) *Server {
	return &Server{rooms: rooms, items: items, uploads: uploads, hub: h, config: config, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/rooms", s.withActor(s.handleCreateRoom))
	mux.HandleFunc("GET /api/rooms/{code}", s.withActor(s.handleGetRoom))
	mux.HandleFunc("POST /api/rooms/{code}/join", s.withActor(s.handleJoinRoom))
	mux.HandleFunc("DELETE /api/rooms/{code}", s.withActor(s.handleDeleteRoom))

	mux.HandleFunc("GET /api/rooms/{code}/items", s.withActor(s.handleListItems))
	mux.HandleFunc("POST /api/rooms/{code}/items", s.withActor(s.handleCreateItem))
	mux.HandleFunc("PUT /api/rooms/{code}/items/{id}", s.withActor(s.handleUpdateItem))
	mux.HandleFunc("DELETE /api/rooms/{code}/items/{id}", s.withActor(s.handleDeleteItem))
	mux.HandleFunc("GET /api/rooms/{code}/items/{id}/versions", s.withActor(s.handleItemVersions))
	mux.HandleFunc("GET /api/rooms/{code}/items/{id}/download", s.withActor(s.handleItemDownload))

	mux.HandleFunc("POST /api/uploads/init", s.withActor(s.handleUploadInit))
	mux.HandleFunc("POST /api/uploads/{id}/chunks/{index}", s.withActor(s.handleUploadChunk))
	mux.HandleFunc("GET /api/uploads/{id}", s.withActor(s.handleUploadProgress))
	mux.HandleFunc("POST /api/uploads/{id}/finalize", s.withActor(s.handleUploadFinalize))
	mux.HandleFunc("POST /api/uploads/{id}/cancel", s.withActor(s.handleUploadCancel))

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor)

// withActor extracts the already-authenticated actor identity from the
// bearer token. Issuance is external; only verification happens here.
func (s *Server) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.actorFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next(w, r, actor)
	}
}

func (s *Server) actorFromRequest(r *http.Request) (auth.Actor, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		// Websocket clients cannot set headers from every environment.
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.Actor{}, common.ErrUnauthorized
	}
	return auth.ActorFromToken(token, []byte(s.config.SecretKey))
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}

// ---- rooms ----

type roomResponse struct {
	Code           string              `json:"code"`
	Mode           string              `json:"mode"`
	Access         string              `json:"access"`
	Lifespan       string              `json:"lifespan"`
	Settings       models.RoomSettings `json:"settings"`
	LastActivityAt string              `json:"lastActivityAt"`
	ExpiresAt      string              `json:"expiresAt,omitempty"`
}

func toRoomResponse(room *models.Room) roomResponse {
	resp := roomResponse{
		Code:           room.Code,
		Mode:           room.Mode,
		Access:         room.Access,
		Lifespan:       room.Lifespan,
		Settings:       room.Settings,
		LastActivityAt: room.LastActivityAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if room.ExpiresAt != nil {
		resp.ExpiresAt = room.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req struct {
		Mode     string              `json:"mode"`
		Access   string              `json:"access"`
		Lifespan string              `json:"lifespan"`
		Password string              `json:"password"`
		Settings models.RoomSettings `json:"settings"`
		TTLHours int                 `json:"ttlHours"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	room, err := s.rooms.Create(r.Context(), services.CreateRoomParams{
		Mode:     req.Mode,
		Access:   req.Access,
		Lifespan: req.Lifespan,
		Password: req.Password,
		OwnerID:  actor.ID,
		Settings: req.Settings,
		TTL:      time.Duration(req.TTLHours) * time.Hour,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomResponse(room))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	room, err := s.rooms.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	room, err := s.rooms.Join(r.Context(), r.PathValue("code"), req.Password, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	if err := s.rooms.Delete(r.Context(), r.PathValue("code"), actor.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- items ----

func toWireItem(item *models.Item, roomCode string) protocol.Item {
	return protocol.Item{
		ID:        item.ID,
		RoomCode:  roomCode,
		Type:      item.Type,
		Name:      item.Name,
		Content:   item.Content,
		ParentID:  item.ParentID,
		CreatedBy: item.CreatedBy,
		Version:   item.Version,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func (s *Server) roomForRequest(r *http.Request) (*models.Room, error) {
	return s.rooms.Get(r.Context(), r.PathValue("code"))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	room, err := s.roomForRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.items.List(r.Context(), room.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]protocol.Item, 0, len(list))
	for _, item := range list {
		items = append(items, toWireItem(item, room.Code))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	room, err := s.roomForRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req protocol.ItemCreatePayload
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	item, err := s.items.Create(r.Context(), room, actor.ID, req.ID, req.Type, req.Name, req.Content, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.publishItemEvent(protocol.EventItemCreated, room.Code, item)
	writeJSON(w, http.StatusCreated, toWireItem(item, room.Code))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	room, err := s.roomForRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req protocol.ItemUpdatePayload
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	item, err := s.items.Update(r.Context(), r.PathValue("id"), actor.ID, req.Name, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	s.publishItemEvent(protocol.EventItemUpdated, room.Code, item)
	writeJSON(w, http.StatusOK, toWireItem(item, room.Code))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	room, err := s.roomForRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID := r.PathValue("id")
	if _, err := s.items.Delete(r.Context(), itemID); err != nil {
		writeError(w, err)
		return
	}

	if event, err := protocol.NewEvent(protocol.EventItemDeleted, protocol.ItemDeletedPayload{ItemID: itemID}); err == nil {
		s.hub.Publish(room.Code, event)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleItemVersions(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	if _, err := s.roomForRequest(r); err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.items.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	type versionResponse struct {
		Version   int64           `json:"version"`
		Content   json.RawMessage `json:"content"`
		Author    string          `json:"author,omitempty"`
		SizeBytes int64           `json:"sizeBytes"`
		CreatedAt string          `json:"createdAt"`
	}
	versions := make([]versionResponse, 0, len(history))
	for _, v := range history {
		versions = append(versions, versionResponse{
			Version:   v.Version,
			Content:   v.Content,
			Author:    v.Author,
			SizeBytes: v.SizeBytes,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleItemDownload(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	if _, err := s.roomForRequest(r); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.items.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	url, err := s.uploads.DownloadURL(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) publishItemEvent(t protocol.EventType, roomCode string, item *models.Item) {
	event, err := protocol.NewEvent(t, protocol.ItemPayload{Item: toWireItem(item, roomCode)})
	if err != nil {
		return
	}
	s.hub.Publish(roomCode, event)
}

// ---- upload sub-protocol ----

func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req struct {
		RoomCode    string `json:"roomCode"`
		Filename    string `json:"filename"`
		MimeType    string `json:"mimeType"`
		Size        int64  `json:"size"`
		TotalChunks int    `json:"totalChunks"`
		Encrypted   bool   `json:"encrypted"`
		EncryptIV   []byte `json:"encryptIv"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	room, err := s.rooms.Get(r.Context(), req.RoomCode)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.uploads.Init(r.Context(), room, actor.ID, services.InitParams{
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		Size:        req.Size,
		TotalChunks: req.TotalChunks,
		Encrypted:   req.Encrypted,
		EncryptIV:   req.EncryptIV,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"uploadId":           result.Upload.ID,
		"chunkUploadTargets": result.ChunkTargets,
		"expiresAt":          result.Upload.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type ackResponse struct {
	UploadedChunks int    `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	Progress       int    `json:"progress"`
	Complete       bool   `json:"complete"`
	Status         string `json:"status,omitempty"`
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: bad chunk index", common.ErrValidation))
		return
	}
	var req struct {
		ETag string `json:"etag"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	state, err := s.uploads.AckChunk(r.Context(), r.PathValue("id"), index, req.ETag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{
		UploadedChunks: state.UploadedChunks,
		TotalChunks:    state.TotalChunks,
		Progress:       state.Progress,
		Complete:       state.Complete,
	})
}

func (s *Server) handleUploadProgress(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	state, err := s.uploads.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{
		UploadedChunks: state.UploadedChunks,
		TotalChunks:    state.TotalChunks,
		Progress:       state.Progress,
		Complete:       state.Complete,
	})
}

func (s *Server) handleUploadFinalize(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	item, err := s.uploads.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	roomCode := ""
	if room, err := s.rooms.GetByID(r.Context(), item.RoomID); err == nil {
		roomCode = room.Code
		s.publishItemEvent(protocol.EventItemCreated, roomCode, item)
	}
	writeJSON(w, http.StatusOK, toWireItem(item, roomCode))
}

func (s *Server) handleUploadCancel(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	if err := s.uploads.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
