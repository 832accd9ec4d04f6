package search

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES answers the handful of endpoints the index uses.
type fakeES struct {
	mu      sync.Mutex
	created bool
	bulk    []string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/products":
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/products":
		f.created = true
		io.WriteString(w, `{"acknowledged":true,"shards_acknowledged":true,"index":"products"}`)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			f.bulk = append(f.bulk, sc.Text())
		}
		io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		io.WriteString(w, `{"took":1,"hits":{"total":{"value":2,"relation":"eq"},"hits":[
			{"_index":"products","_id":"7","_score":2.0},
			{"_index":"products","_id":"3","_score":1.0}]}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestIndex(t *testing.T) {
	es := &fakeES{}
	srv := httptest.NewServer(es)
	defer srv.Close()

	idx, err := NewIndex(srv.URL, "products")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.EnsureIndex(ctx))
	assert.True(t, es.created)
	require.NoError(t, idx.EnsureIndex(ctx), "existing index is left alone")

	require.NoError(t, idx.Index(ctx,
		ProductDoc{ID: 7, Title: "Gaming mouse", Price: 19.5, Count: 4},
		ProductDoc{ID: 3, Title: "Mouse pad", Price: 5, Count: 0},
	))
	require.Len(t, es.bulk, 4)
	var action map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(es.bulk[0]), &action))
	assert.Equal(t, "7", action["index"]["_id"])
	assert.Contains(t, es.bulk[1], `"title":"Gaming mouse"`)

	ids, err := idx.Search(ctx, "mouse", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 3}, ids)

	assert.NoError(t, idx.Index(ctx))
}
