package api

// CreateRoomResponse is returned by POST /create-room.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// ScreenshotResponse is returned by POST /screenshot.
type ScreenshotResponse struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
}

// ErrorResponse is the body of every 4xx/5xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Form field names of the screenshot upload.
const (
	FormFieldFile   = "file"
	FormFieldRoomID = "roomId"
)
