package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

func setupTestDB(t *testing.T) *database.SQLiteDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agent.db")
	db := database.NewSQLiteDB(database.NewConfig(dbPath))
	ctx := context.Background()
	require.NoError(t, db.Connect(ctx, dbPath))
	require.NoError(t, db.Migrator().Run())
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRow(pointID string) database.StagingRow {
	return database.StagingRow{
		ControllerIP:       "10.0.1.50",
		UDPPort:            47808,
		ControllerDeviceID: 1001,
		ControllerID:       "ctrl-1",
		PointID:            pointID,
		IoTDevicePointID:   "cloud-" + pointID,
		ObjectType:         "analogInput",
		Units:              "degreesFahrenheit",
		PresentValue:       "72.5",
	}
}

func TestPublishPoints_ForwardsUnackedRowsToMQTT(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.BulkInsertStagingRows(ctx, []database.StagingRow{sampleRow("pt-1"), sampleRow("pt-2")}))

	registry := mailbox.NewRegistry(8, nil)
	mqttBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &Actor{Registry: registry, DB: db}
	a.publishPoints(ctx)

	env, ok := mqttBox.TryRecv()
	require.True(t, ok)
	assert.Equal(t, message.TypePointPublishRequest, env.Type)
	req, ok := env.Payload.(message.PointPublishRequest)
	require.True(t, ok)
	assert.Len(t, req.Rows, 2)
}

func TestPublishPoints_NoRowsSendsNothing(t *testing.T) {
	db := setupTestDB(t)
	registry := mailbox.NewRegistry(8, nil)
	mqttBox, err := registry.Register(message.ActorMQTT)
	require.NoError(t, err)

	a := &Actor{Registry: registry, DB: db}
	a.publishPoints(context.Background())

	_, ok := mqttBox.TryRecv()
	assert.False(t, ok)
}

func TestOnPointPublishResponse_MarksRowsUploaded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.BulkInsertStagingRows(ctx, []database.StagingRow{sampleRow("pt-1")}))
	pending, err := db.GetPointsToUpload(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	a := &Actor{Registry: mailbox.NewRegistry(8, nil), DB: db}
	a.onPointPublishResponse(ctx, message.PointPublishResponse{RowIDs: []int64{pending[0].ID}})

	remaining, err := db.GetPointsToUpload(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestJWTExpired_EmptyTokenIsExpired(t *testing.T) {
	expired, err := jwtExpired("")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestJWTExpired_FutureExpiryIsNotExpired(t *testing.T) {
	expired, err := jwtExpired(signedJWT(t, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestJWTExpired_PastExpiryIsExpired(t *testing.T) {
	expired, err := jwtExpired(signedJWT(t, time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestForwardConfigUpload_SkipsExpiredJWT(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := &Actor{HTTPClient: server.Client()}
	a.forwardConfigUpload(context.Background(), message.ConfigUploadResponse{
		UploadURL: server.URL,
		JWT:       signedJWT(t, time.Now().Add(-time.Hour)),
		Success:   true,
	})

	assert.False(t, called)
}

func TestForwardConfigUpload_PostsOnValidJWT(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := &Actor{HTTPClient: server.Client()}
	a.forwardConfigUpload(context.Background(), message.ConfigUploadResponse{
		UploadURL: server.URL,
		JWT:       signedJWT(t, time.Now().Add(time.Hour)),
		CommandID: "cmd-1",
		Success:   true,
	})

	assert.True(t, called)
}

func TestForwardConfigUpload_NonRetriedOnClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	a := &Actor{HTTPClient: server.Client()}
	a.forwardConfigUpload(context.Background(), message.ConfigUploadResponse{
		UploadURL: server.URL,
		JWT:       signedJWT(t, time.Now().Add(time.Hour)),
	})

	assert.Equal(t, 1, attempts)
}
