package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/dfryer1193/roomshot/api"
	"github.com/dfryer1193/roomshot/room/application"
	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type RoomsApi struct {
	relay          *application.RelayService
	maxUploadBytes int64
}

func (a *RoomsApi) CreateRoom(c *gin.Context) {
	room, err := a.relay.CreateRoom(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.CreateRoomResponse{RoomID: room.ID})
}

// PostScreenshot replaces the room's image with the uploaded file.
// Rejected uploads are dropped; nothing is written to the room slot.
func (a *RoomsApi) PostScreenshot(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxUploadBytes)
	defer func() {
		if c.Request.MultipartForm != nil {
			_ = c.Request.MultipartForm.RemoveAll()
		}
	}()

	fileHeader, err := c.FormFile(api.FormFieldFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || c.Request.ContentLength > a.maxUploadBytes {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "No file uploaded"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		internalError(c, err)
		return
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		internalError(c, err)
		return
	}

	roomID := c.PostForm(api.FormFieldRoomID)
	img, err := a.relay.Push(c.Request.Context(), roomID, content)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Room not found"})
		return
	case errors.Is(err, domain.ErrUploadRejected):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Empty file uploaded"})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ScreenshotResponse{ID: img.Version, RoomID: roomID})
}

// GetScreen serves the room's current image, or 304 when If-None-Match already names it.
func (a *RoomsApi) GetScreen(c *gin.Context) {
	roomID := c.Param("roomId")

	result, err := a.relay.Negotiate(c.Request.Context(), roomID, c.GetHeader("If-None-Match"))
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Room not found"})
		return
	case errors.Is(err, domain.ErrNoImageYet):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "No screenshot yet"})
		return
	case err != nil:
		internalError(c, err)
		return
	}

	// Browsers must revalidate every time instead of reusing a cached frame
	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", result.ETag())

	if result.NotModified {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, result.Image.ContentType, result.Image.Content)
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	log.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Internal server error"})
}
