package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/xpzouying/reels-autopost/catalog"
)

type fakeFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size,omitempty"`
}

type fakeDrive struct {
	folders  map[string][]fakeFile // parent -> folders
	files    map[string][]fakeFile // parent -> files
	contents map[string][]byte
	pageSize int
	queries  []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/files":
		f.list(w, r)
	case strings.HasPrefix(r.URL.Path, "/files/") && r.URL.Query().Get("alt") == "media":
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		data, ok := f.contents[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	f.queries = append(f.queries, q)

	parent := q[strings.Index(q, "'")+1:]
	parent = parent[:strings.Index(parent, "'")]

	var all []fakeFile
	if strings.Contains(q, "mimeType = ") {
		all = f.folders[parent]
	} else {
		all = f.files[parent]
	}

	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok == "page2" {
		start = f.pageSize
	}
	resp := map[string]any{}
	page := all[start:]
	if f.pageSize > 0 && start == 0 && len(all) > f.pageSize {
		page = all[:f.pageSize]
		resp["nextPageToken"] = "page2"
	}
	resp["files"] = page

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, fake *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClientWithOptions(context.Background(), "root-id",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return c
}

func TestClient_ListCollections(t *testing.T) {
	fake := &fakeDrive{
		folders: map[string][]fakeFile{"root-id": {
			{ID: "f1", Name: "day1", MimeType: folderMimeType},
			{ID: "f2", Name: "day2", MimeType: folderMimeType},
			{ID: "f3", Name: "day3", MimeType: folderMimeType},
		}},
		pageSize: 2,
	}
	c := newTestClient(t, fake)

	cols, err := c.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []catalog.Collection{
		{ID: "f1", Name: "day1"},
		{ID: "f2", Name: "day2"},
		{ID: "f3", Name: "day3"},
	}, cols)
	assert.Len(t, fake.queries, 2, "both pages fetched")
	assert.Contains(t, fake.queries[0], "trashed = false")
}

func TestClient_ListCollections_FlatRoot(t *testing.T) {
	c := newTestClient(t, &fakeDrive{})

	cols, err := c.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []catalog.Collection{{ID: "root-id", Name: RootCollectionName}}, cols)
}

func TestClient_ListItems(t *testing.T) {
	fake := &fakeDrive{files: map[string][]fakeFile{"f1": {
		{ID: "v1", Name: "part1.mp4", MimeType: "video/mp4", Size: "2048"},
		{ID: "n1", Name: "notes.txt", MimeType: "text/plain", Size: "10"},
	}}}
	c := newTestClient(t, fake)

	items, err := c.ListItems(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, catalog.Item{ID: "v1", Name: "part1.mp4", Size: 2048, MimeType: "video/mp4"}, items[0])
	assert.Contains(t, fake.queries[0], "'f1' in parents")
}

func TestClient_Download(t *testing.T) {
	head := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
	payload := append(head, bytes.Repeat([]byte{0x02}, 1000)...)
	c := newTestClient(t, &fakeDrive{contents: map[string][]byte{"v1": payload}})

	dest := filepath.Join(t.TempDir(), "source.mp4")
	var last int64
	err := c.Download(context.Background(), catalog.Item{ID: "v1", Name: "part1.mp4"}, dest, func(written, total int64) {
		last = written
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), last)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClient_Download_NotFound(t *testing.T) {
	c := newTestClient(t, &fakeDrive{})

	err := c.Download(context.Background(), catalog.Item{ID: "missing", Name: "x.mp4"}, filepath.Join(t.TempDir(), "x.mp4"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.mp4")
}

func TestNewClientWithOptions_RequiresRoot(t *testing.T) {
	_, err := NewClientWithOptions(context.Background(), " ", option.WithoutAuthentication())
	require.Error(t, err)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `it\'s`, escape("it's"))
	assert.Equal(t, `a\\b`, escape(`a\b`))
}
