package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/danmuck/dmapctl/internal/testutil/fakebackend"
	"github.com/danmuck/dmapctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, fake *fakebackend.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: fake.URL() + "/", RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	testlog.Start(t)

	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	require.NoError(t, cfg.Validate())

	for _, bad := range []string{"127.0.0.1:8000", "ftp://host", "http://", "://x"} {
		_, err := NewClient(Config{BaseURL: bad})
		assert.ErrorIs(t, err, ErrInvalidBaseURL, bad)
	}
}

func TestFetchCollectionDecodesRecords(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetCollection("mbstuff", `[{"mb_lock_to_uid":"u1","mb_ip":"10.0.0.2","mb_port":502,"mb_register":"7","mb_rw":"r"}]`)
	client := newTestClient(t, fake)

	recs, err := client.FetchCollection(context.Background(), protocol.KeyModbus)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, record.ModbusMapping{LockedToUID: "u1", IP: "10.0.0.2", Port: 502, Register: 7, RW: "r"}, recs[0])
	assert.Equal(t, 1, fake.Hits(fakebackend.RouteList))
}

func TestFetchCollectionSchemaMismatch(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetCollection("mqttstuff", `{"unexpected":true}`)
	client := newTestClient(t, fake)

	_, err := client.FetchCollection(context.Background(), protocol.KeyMqtt)
	assert.ErrorIs(t, err, record.ErrSchemaMismatch)
}

func TestNonOKStatusIsServerError(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	client := newTestClient(t, fake)

	for _, status := range []int{http.StatusCreated, http.StatusNoContent, http.StatusBadRequest, http.StatusInternalServerError} {
		fake.FailRoute(fakebackend.RouteAllocate, status)
		_, err := client.AllocateUID(context.Background())
		require.Error(t, err)
		var srvErr *ServerError
		require.True(t, errors.As(err, &srvErr), "status %d: %v", status, err)
		assert.Equal(t, status, srvErr.StatusCode)
		assert.ErrorIs(t, err, ErrServer)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	testlog.Start(t)

	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = client.AllocateUID(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.False(t, errors.Is(err, ErrServer))
}

func TestAllocateUID(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetUIDs("abc123")
	client := newTestClient(t, fake)

	uid, err := client.AllocateUID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", uid)

	uid, err = client.AllocateUID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, uid)
	assert.NotEqual(t, "abc123", uid)
}

func TestSubmitPostsEncodedRecord(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	client := newTestClient(t, fake)

	err := client.Submit(context.Background(), protocol.KeyRapi, record.Generic{
		UID:   "abc123",
		Name:  "temp1",
		Value: "0",
		RW:    record.RWRead,
	})
	require.NoError(t, err)

	posted := fake.Posted(fakebackend.RouteGeneric)
	require.Len(t, posted, 1)
	assert.Equal(t, "abc123", posted[0]["node_uid"])
	assert.Equal(t, "temp1", posted[0]["node_name"])
	assert.NotContains(t, posted[0], "node_last_update")

	recs, err := client.FetchCollection(context.Background(), protocol.KeyRapi)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].(record.Generic).LastUpdate.IsZero())
}

func TestSubmitRejectsUnknownProtocolWithoutRequest(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	client := newTestClient(t, fake)

	err := client.Submit(context.Background(), "opcua", record.Generic{})
	assert.ErrorIs(t, err, record.ErrUnsupported)

	_, err = client.ListRaw(context.Background(), protocol.Unsupported("opcua"))
	assert.ErrorIs(t, err, record.ErrUnsupported)
	assert.Zero(t, fake.Hits(fakebackend.RouteList))
}

func TestOversizedBodyIsNetworkError(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)

	item := `{"mb_lock_to_uid":"u1","mb_ip":"10.0.0.7","mb_port":"502","mb_register":"40001","mb_rw":"r"}`
	payload := "[" + strings.TrimSuffix(strings.Repeat(item+",", 200), ",") + "]"
	fake.SetCollection("mbstuff", payload)

	small, err := NewClient(Config{BaseURL: fake.URL(), RequestTimeout: 2 * time.Second, MaxBodyBytes: 1024})
	require.NoError(t, err)
	_, err = small.FetchCollection(context.Background(), protocol.KeyModbus)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.False(t, errors.Is(err, record.ErrSchemaMismatch))

	exact, err := NewClient(Config{BaseURL: fake.URL(), RequestTimeout: 2 * time.Second, MaxBodyBytes: int64(len(payload))})
	require.NoError(t, err)
	list, err := exact.FetchCollection(context.Background(), protocol.KeyModbus)
	require.NoError(t, err)
	assert.Len(t, list, 200)
}
