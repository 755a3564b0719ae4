package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type RoomsHandler struct {
	Registry *app.Registry
}

type roomsResponse struct {
	Rooms []domain.RoomInfo `json:"rooms"`
}

func (h *RoomsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, roomsResponse{Rooms: h.Registry.List()})
}

type roomURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

func (h *RoomsHandler) Get(c *gin.Context) {
	var uri roomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	info, ok := h.Registry.Room(domain.RoomID(uri.ID))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

type ProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=36"`
}

type ProfileResponse struct {
	DisplayName string `json:"display_name"`
}

func GetProfile(c *gin.Context) {
	name, _ := sessions.Default(c).Get(signal.SessionNameKey).(string)
	c.JSON(http.StatusOK, ProfileResponse{DisplayName: name})
}

// PutProfile stores the display name used when a join does not carry one.
func PutProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DisplayName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid display_name"})
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	s := sessions.Default(c)
	s.Set(signal.SessionNameKey, name)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{DisplayName: name})
}
