package webhook

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "tasks"), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNotifyDeliversGzipNDJSON(t *testing.T) {
	store := newTestStore(t)
	task, err := store.Register(&types.Task{Kind: types.KindDocumentClear, Status: types.StatusSucceeded}, nil, false)
	require.NoError(t, err)

	received := make(chan []types.Task, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		data, err := io.ReadAll(gz)
		require.NoError(t, err)

		var got []types.Task
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var one types.Task
			if err := dec.Decode(&one); err != nil {
				break
			}
			got = append(got, one)
		}
		received <- got
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New([]Endpoint{{URL: server.URL}}, 5*time.Second)
	n.Start()
	defer n.Stop()

	n.Notify([]*types.Task{task})

	select {
	case got := <-received:
		require.Len(t, got, 1)
		require.Equal(t, task.UID, got[0].UID)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered in time")
	}
}

func TestNotifySkipsWithNoEndpoints(t *testing.T) {
	n := New(nil, time.Second)
	n.Start()
	defer n.Stop()
	n.Notify([]*types.Task{{UID: 1}}) // must not panic or block
}
