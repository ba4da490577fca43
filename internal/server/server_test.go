package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renal-risk-stream/internal/cache"
	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/simulator"
	"renal-risk-stream/internal/stream"
	"renal-risk-stream/internal/version"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

type fakeLatest struct {
	snaps map[uuid.UUID]stream.Snapshot
	err   error
}

func (f *fakeLatest) Latest(_ context.Context, id uuid.UUID) (stream.Snapshot, error) {
	if f.err != nil {
		return stream.Snapshot{}, f.err
	}
	snap, ok := f.snaps[id]
	if !ok {
		return stream.Snapshot{}, cache.ErrSnapshotNotFound
	}
	return snap, nil
}

func newTestServer(t *testing.T, latest LatestReader) *Server {
	t.Helper()
	pub := stream.NewPublisher(stream.Options{
		TickInterval: 10 * time.Millisecond,
		NewSimulator: func() (*simulator.Simulator, error) {
			return simulator.New(simulator.Options{Source: fixedSource(0.5)})
		},
	}, nil, zerolog.Nop())
	return New(Options{}, pub, latest, zerolog.Nop())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string       `json:"status"`
		Build    version.Info `json:"build"`
		Profile  string       `json:"profile"`
		Strategy string       `json:"strategy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, version.Version, body.Build.Version)
	assert.Equal(t, "four_level", body.Profile)
	assert.Equal(t, "score", body.Strategy)
}

func TestScenario(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scenario", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Hours      int              `json:"hours"`
		DurationMS int64            `json:"duration_ms"`
		Keyframes  []map[string]any `json:"keyframes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, simulator.ScenarioHours, body.Hours)
	assert.Equal(t, int64(300000), body.DurationMS)
	require.Len(t, body.Keyframes, len(simulator.DefaultScenario()))
	assert.EqualValues(t, 0, body.Keyframes[0]["offset_ms"])
	assert.EqualValues(t, 300000, body.Keyframes[len(body.Keyframes)-1]["offset_ms"])
}

func postClassify(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestClassifyEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postClassify(t, s, `{"urea":122,"ecw_tbw":0.47,"phase_angle":6.1,"heart_rate":128,"spo2":90,"profile":"five_level","strategy":"rule"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "five_level", resp.Profile)
	require.Len(t, resp.Readings, 4)
	assert.Equal(t, risk.Orange, resp.Readings[0].Risk)
	assert.Equal(t, risk.Orange, resp.Readings[1].Risk)
	assert.Equal(t, risk.Yellow, resp.Readings[2].Risk)
	assert.Equal(t, risk.Yellow, resp.Readings[3].Risk)
	assert.Equal(t, risk.Orange, resp.Fusion.FinalRisk)
	assert.Equal(t, fusion.StrategyRule, resp.Fusion.Strategy)
	assert.Nil(t, resp.Fusion.Score)
}

func TestClassifyEndpointZeroValuesAccepted(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postClassify(t, s, `{"urea":0,"ecw_tbw":0.38,"phase_angle":5.8,"heart_rate":72,"spo2":98}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestClassifyEndpointRejectsInvalid(t *testing.T) {
	s := newTestServer(t, nil)
	for name, body := range map[string]string{
		"malformed":        `{"urea":`,
		"missing field":    `{"urea":30,"ecw_tbw":0.38,"phase_angle":5.8,"heart_rate":72}`,
		"unknown profile":  `{"urea":30,"ecw_tbw":0.38,"phase_angle":5.8,"heart_rate":72,"spo2":98,"profile":"seven"}`,
		"unknown strategy": `{"urea":30,"ecw_tbw":0.38,"phase_angle":5.8,"heart_rate":72,"spo2":98,"strategy":"vote"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postClassify(t, s, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestLatestSnapshot(t *testing.T) {
	id := uuid.New()
	sim, err := simulator.New(simulator.Options{Source: fixedSource(0.5)})
	require.NoError(t, err)
	sess, err := stream.NewSession(id, time.Now(), sim, risk.FourLevel, fusion.NewScoreBased(), stream.DefaultCadence())
	require.NoError(t, err)

	s := newTestServer(t, &fakeLatest{snaps: map[uuid.UUID]stream.Snapshot{id: sess.Snapshot()}})

	cases := []struct {
		path string
		code int
	}{
		{"/api/v1/streams/" + id.String() + "/latest", http.StatusOK},
		{"/api/v1/streams/" + uuid.NewString() + "/latest", http.StatusNotFound},
		{"/api/v1/streams/not-a-uuid/latest", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, rec.Code, tc.path)
	}
}

func TestLatestSnapshotWithoutCache(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/streams/"+uuid.NewString()+"/latest", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s = newTestServer(t, &fakeLatest{err: errors.New("redis down")})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/streams/"+uuid.NewString()+"/latest", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStreamSSE(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream?strategy=rule", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	streamID, err := uuid.Parse(resp.Header.Get(streamIDHeader))
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	var snaps []stream.Snapshot
	for len(snaps) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), line)
		blank, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "\n", blank)

		var snap stream.Snapshot
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSuffix(line, "\n"), "data: ")), &snap))
		snaps = append(snaps, snap)
	}

	assert.Equal(t, streamID, snaps[0].StreamID)
	assert.Equal(t, int64(0), snaps[0].ElapsedMS)
	assert.Equal(t, fusion.StrategyRule, snaps[0].Fusion.Strategy)
	assert.Greater(t, snaps[2].Seq, snaps[1].Seq)
}

func TestStreamSSERejectsUnknownProfile(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream?profile=nine", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamWebSocket(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?profile=five_level"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	streamID := resp.Header.Get(streamIDHeader)
	require.NotEmpty(t, streamID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msgs []Message
	for len(msgs) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		msgs = append(msgs, msg)
	}

	assert.Equal(t, "snapshot", msgs[0].Event)
	assert.Equal(t, streamID, msgs[0].Data.StreamID.String())
	assert.Equal(t, int64(0), msgs[0].Data.ElapsedMS)
	// five-level keeps BLUE for the baseline fluid reading
	assert.Equal(t, risk.Blue, msgs[0].Data.Fluid.Risk)
}

func TestEncodeSSE(t *testing.T) {
	frame, err := encodeSSE(stream.Snapshot{StreamID: uuid.Nil})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(frame, []byte("data: {")))
	assert.True(t, bytes.HasSuffix(frame, []byte("}\n\n")))
	assert.Equal(t, 1, bytes.Count(frame, []byte("\n\n")))
}
