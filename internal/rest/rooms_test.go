package rest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dfryer1193/roomshot/api"
	"github.com/dfryer1193/roomshot/internal/metrics"
	"github.com/dfryer1193/roomshot/internal/middleware"
	"github.com/dfryer1193/roomshot/room/application"
	"github.com/dfryer1193/roomshot/room/persistence"
	"github.com/dfryer1193/roomshot/shared/db/sqlite"
	"github.com/gin-gonic/gin"
)

const testMaxUpload = 1 << 20

type testServer struct {
	engine     *gin.Engine
	storageDir string
	metrics    *metrics.Registry
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rooms.db")})
	if err := database.Connect(); err != nil {
		t.Fatalf("Failed to connect database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	storageDir := filepath.Join(t.TempDir(), "screenshots")
	rooms, err := persistence.NewRoomRepository(database.DB(), storageDir)
	if err != nil {
		t.Fatalf("Failed to create room repository: %v", err)
	}

	reg := metrics.NewRegistry()
	relay := application.NewRelayService(rooms, persistence.NewDiskImageStore(), reg)

	engine := gin.New()
	engine.Use(middleware.LoggingMiddleware(reg))
	engine.Use(gin.CustomRecovery(middleware.HandlePanics()))
	NewApi(engine, relay, testMaxUpload, reg.Handler)

	return &testServer{engine: engine, storageDir: storageDir, metrics: reg}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) createRoom(t *testing.T) string {
	t.Helper()
	w := s.do(t, httptest.NewRequest(http.MethodPost, "/create-room", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("create-room status = %d, want 200", w.Code)
	}
	var resp api.CreateRoomResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid create-room body: %v", err)
	}
	if resp.RoomID == "" {
		t.Fatal("create-room returned empty roomId")
	}
	return resp.RoomID
}

func newUploadRequest(t *testing.T, roomID string, content []byte, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withFile {
		fw, err := mw.CreateFormFile(api.FormFieldFile, "screenshot.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(content)
	}
	if roomID != "" {
		mw.WriteField(api.FormFieldRoomID, roomID)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/screenshot", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) push(t *testing.T, roomID string, content []byte) api.ScreenshotResponse {
	t.Helper()
	w := s.do(t, newUploadRequest(t, roomID, content, true))
	if w.Code != http.StatusOK {
		t.Fatalf("screenshot status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp api.ScreenshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid screenshot body: %v", err)
	}
	return resp
}

func (s *testServer) pull(t *testing.T, roomID, ifNoneMatch string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/screen/"+roomID, nil)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	return s.do(t, req)
}

func TestScreenScenario(t *testing.T) {
	s := setupTestServer(t)
	roomID := s.createRoom(t)

	imageA := []byte("\xff\xd8\xff\xe0 image A bytes")
	pushedA := s.push(t, roomID, imageA)
	if pushedA.RoomID != roomID || pushedA.ID == "" {
		t.Fatalf("unexpected push response %+v", pushedA)
	}

	w := s.pull(t, roomID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("pull status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), imageA) {
		t.Errorf("pull body differs from pushed bytes")
	}
	tagA := w.Header().Get("ETag")
	if tagA != application.FormatETag(pushedA.ID) {
		t.Errorf("ETag = %q, want %q", tagA, application.FormatETag(pushedA.ID))
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got := w.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", got)
	}

	w = s.pull(t, roomID, tagA)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional pull status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("304 body has %d bytes, want 0", w.Body.Len())
	}

	imageB := []byte("image B bytes")
	pushedB := s.push(t, roomID, imageB)

	w = s.pull(t, roomID, tagA)
	if w.Code != http.StatusOK {
		t.Fatalf("pull after new push status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), imageB) {
		t.Errorf("body = %q, want %q", w.Body.Bytes(), imageB)
	}
	tagB := w.Header().Get("ETag")
	if tagB != application.FormatETag(pushedB.ID) || tagB == tagA {
		t.Errorf("ETag = %q, want fresh tag %q", tagB, application.FormatETag(pushedB.ID))
	}

	if got := s.metrics.Value("screen_not_modified_total", map[string]string{}); got != 1 {
		t.Errorf("screen_not_modified_total = %d, want 1", got)
	}
}

func TestGetScreen_OnlyExactTagIsNotModified(t *testing.T) {
	s := setupTestServer(t)
	roomID := s.createRoom(t)
	pushed := s.push(t, roomID, []byte("image A"))
	tag := application.FormatETag(pushed.ID)

	tests := []struct {
		name        string
		ifNoneMatch string
		want        int
	}{
		{name: "current tag", ifNoneMatch: tag, want: http.StatusNotModified},
		{name: "wildcard", ifNoneMatch: "*", want: http.StatusOK},
		{name: "unquoted version", ifNoneMatch: pushed.ID, want: http.StatusOK},
		{name: "weak tag", ifNoneMatch: "W/" + tag, want: http.StatusOK},
		{name: "list with current tag", ifNoneMatch: `"other", ` + tag, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.pull(t, roomID, tt.ifNoneMatch)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "image A" {
				t.Errorf("body = %q, want %q", w.Body.String(), "image A")
			}
		})
	}
}

func TestGetScreen_NotFound(t *testing.T) {
	s := setupTestServer(t)
	roomID := s.createRoom(t)

	tests := []struct {
		name   string
		roomID string
		want   string
	}{
		{name: "never created", roomID: "0b7e1c1e-8f6a-4d7c-9a51-3d2b8f4e6a10", want: "Room not found"},
		{name: "garbage id", roomID: "not-a-room", want: "Room not found"},
		{name: "no image yet", roomID: roomID, want: "No screenshot yet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.pull(t, tt.roomID, "")
			if w.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", w.Code)
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if resp.Error != tt.want {
				t.Errorf("error = %q, want %q", resp.Error, tt.want)
			}
		})
	}
}

func TestPostScreenshot_Rejected(t *testing.T) {
	s := setupTestServer(t)
	roomID := s.createRoom(t)

	tests := []struct {
		name     string
		roomID   string
		content  []byte
		withFile bool
		want     string
	}{
		{name: "missing file", roomID: roomID, withFile: false, want: "No file uploaded"},
		{name: "unknown room", roomID: "0b7e1c1e-8f6a-4d7c-9a51-3d2b8f4e6a10", content: []byte("img"), withFile: true, want: "Room not found"},
		{name: "missing room id", roomID: "", content: []byte("img"), withFile: true, want: "Room not found"},
		{name: "empty file", roomID: roomID, content: nil, withFile: true, want: "Empty file uploaded"},
		{name: "too large", roomID: roomID, content: bytes.Repeat([]byte{1}, testMaxUpload+1), withFile: true, want: "File too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, newUploadRequest(t, tt.roomID, tt.content, tt.withFile))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if resp.Error != tt.want {
				t.Errorf("error = %q, want %q", resp.Error, tt.want)
			}
		})
	}

	// Nothing from the rejected uploads may be left behind in storage
	var files []string
	filepath.WalkDir(s.storageDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if len(files) != 0 {
		t.Errorf("storage holds %v after rejected uploads", files)
	}

	w := s.pull(t, roomID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("pull after rejected uploads status = %d, want 404", w.Code)
	}
}

func TestUnknownRouteAndHealth(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", w.Code)
	}

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}
