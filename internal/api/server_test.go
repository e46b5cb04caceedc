package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/config"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/database/models"
	"github.com/calltrail/calltrail/internal/errs"
	"github.com/calltrail/calltrail/internal/outbound"
	"github.com/calltrail/calltrail/internal/retention"
	"github.com/calltrail/calltrail/internal/webhook"
)

// fakeBackend is an in-memory storage.Backend that records every read,
// so tests can assert that blocked downloads never touch storage.
type fakeBackend struct {
	data  map[string][]byte
	reads []string
}

func (b *fakeBackend) ReadBytes(_ context.Context, key string) ([]byte, error) {
	b.reads = append(b.reads, key)
	data, ok := b.data[key]
	if !ok {
		return nil, errs.NotFound("recording blob", key)
	}
	return data, nil
}

// stubSender is an outbound.Sender whose result the test scripts.
type stubSender struct {
	msgID string
	err   error
}

func (s *stubSender) Send(context.Context, outbound.SendRequest) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.msgID, `{"id":"` + s.msgID + `"}`, nil
}

func (s *stubSender) Name() string { return "stub" }

type apiFixture struct {
	server *Server
	token  string
	priv   ed25519.PrivateKey
	cfg    *config.Config

	calls      database.CallLogRepository
	recordings database.RecordingRepository
	holds      database.LegalHoldRepository
	backend    *fakeBackend
	sender     *stubSender
}

var operatorSecret = []byte("0123456789abcdef0123456789abcdef")

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	cfg := &config.Config{
		SignatureHeader:          "X-Webhook-Signature",
		TimestampHeader:          "X-Webhook-Timestamp",
		TranscriptConfidenceMin:  0.6,
		SynthesisNoiseMax:        0.4,
		RetentionBillingDays:     2555,
		RetentionOperationalDays: 90,
	}

	orgs := database.NewOrgRepository(db)
	calls := database.NewCallLogRepository(db)
	events := database.NewCallEventRepository(db)
	recordings := database.NewRecordingRepository(db)
	outEvents := database.NewOutboundEventRepository(db)
	attempts := database.NewDeliveryAttemptRepository(db)
	holds := database.NewLegalHoldRepository(db)
	transcripts := database.NewTranscriptRepository(db)

	ctx := context.Background()
	if err := orgs.Create(ctx, &models.Org{
		OrgID:             "org-1",
		Name:              "Test Org",
		ProviderAccountID: "acct-1",
		TelephonyEnabled:  true,
	}); err != nil {
		t.Fatalf("seeding org: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	processor := webhook.NewProcessor(
		webhook.NewVerifier(pub), true,
		orgs, calls, events, recordings,
		retention.StaticResolver{BillingDays: cfg.RetentionBillingDays, OperationalDays: cfg.RetentionOperationalDays},
		audit.NopSink{}, nil, logger,
	)

	sender := &stubSender{msgID: "msg-1"}
	dispatcher := outbound.NewDispatcher(outEvents, attempts, sender, audit.NopSink{}, logger)
	backend := &fakeBackend{data: map[string][]byte{}}

	server := NewServer(cfg, ServerDeps{
		DB:             db,
		Orgs:           orgs,
		Calls:          calls,
		Events:         events,
		Recordings:     recordings,
		OutEvents:      outEvents,
		Attempts:       attempts,
		Holds:          holds,
		Transcripts:    transcripts,
		Processor:      processor,
		Dispatcher:     dispatcher,
		Store:          backend,
		AuditSink:      audit.NopSink{},
		OperatorSecret: operatorSecret,
	})
	t.Cleanup(server.Close)

	token, err := middleware.GenerateOperatorToken(operatorSecret, "org-1", "alice", time.Hour)
	if err != nil {
		t.Fatalf("GenerateOperatorToken() error: %v", err)
	}

	return &apiFixture{
		server:     server,
		token:      token,
		priv:       priv,
		cfg:        cfg,
		calls:      calls,
		recordings: recordings,
		holds:      holds,
		backend:    backend,
		sender:     sender,
	}
}

// do executes one request against the router with the operator token.
func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope splits a response into its data and error halves.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, string) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, rec.Body.String())
	}
	return env.Data, env.Error
}

// seedCall inserts one call aggregate and returns it.
func (f *apiFixture) seedCall(t *testing.T, externalID string) *models.CallLog {
	t.Helper()
	call, err := f.calls.Upsert(context.Background(), "org-1", externalID, database.PartialCallLog{
		Direction: "inbound",
		FromAddr:  "+15550100",
		ToAddr:    "+15550199",
		CallState: models.StateInitiated,
	})
	if err != nil {
		t.Fatalf("seeding call: %v", err)
	}
	return call
}

// seedRecording inserts a recording registration with a blob behind it.
func (f *apiFixture) seedRecording(t *testing.T, callID int64, key string) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		OrgID:           "org-1",
		CallID:          callID,
		URL:             key,
		Classification:  "billing",
		RetentionPolicy: "default-billing",
		RetainUntil:     time.Now().Add(24 * time.Hour),
	}
	if err := f.recordings.Create(context.Background(), rec); err != nil {
		t.Fatalf("seeding recording: %v", err)
	}
	f.backend.data[key] = []byte("RIFFfake-wav-bytes")
	return rec
}

func TestHealthUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestOperatorAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/calls", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

// signWebhook produces the header pair for a raw delivery body.
func signWebhook(priv ed25519.PrivateKey, timestamp string, body []byte) string {
	signed := append([]byte(timestamp+"."), body...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, signed))
}

func postWebhook(f *apiFixture, body []byte, signature, timestamp string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", bytes.NewReader(body))
	req.Header.Set(f.cfg.SignatureHeader, signature)
	req.Header.Set(f.cfg.TimestampHeader, timestamp)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestWebhookEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ts := "1700000000"
	body := []byte(`{"data":{"event_type":"call.initiated","id":"evt-1",` +
		`"occurred_at":"2026-08-30T12:00:00Z",` +
		`"payload":{"account_id":"acct-1","call_id":"call-1","direction":"inbound",` +
		`"from":"+15550100","to":"+15550199"}}}`)

	rec := postWebhook(f, body, signWebhook(f.priv, ts, body), ts)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	// The ack is the provider's flat wire shape, never the operator
	// envelope.
	var ack map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if _, enveloped := ack["data"]; enveloped {
		t.Fatalf("ack is enveloped: %s", rec.Body.String())
	}
	if ack["status"] != "ok" || ack["accepted"] != true {
		t.Errorf("ack = %v, want flat {status: ok, accepted: true}", ack)
	}
	if id, _ := ack["call_id"].(float64); id == 0 {
		t.Errorf("ack = %v, want call id", ack)
	}

	// The aggregate is visible through the operator API.
	listRec := f.do(t, http.MethodGet, "/api/v1/calls", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	if !strings.Contains(listRec.Body.String(), `"external_call_id":"call-1"`) {
		t.Errorf("call missing from list: %s", listRec.Body.String())
	}
}

func TestWebhookTamperedBodyRejected(t *testing.T) {
	f := newAPIFixture(t)
	ts := "1700000000"
	body := []byte(`{"data":{"event_type":"call.initiated","id":"evt-1","payload":{"account_id":"acct-1","call_id":"call-1"}}}`)
	sig := signWebhook(f.priv, ts, body)

	tampered := bytes.Replace(body, []byte("call-1"), []byte("call-2"), 1)
	rec := postWebhook(f, tampered, sig, ts)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if _, errMsg := decodeEnvelope(t, rec); errMsg != "signature verification failed" {
		t.Errorf("error = %q", errMsg)
	}
}

func TestWebhookUnknownAccountIsSoftSkip(t *testing.T) {
	f := newAPIFixture(t)
	ts := "1700000000"
	body := []byte(`{"data":{"event_type":"call.initiated","id":"evt-9","payload":{"account_id":"acct-nobody","call_id":"call-1"}}}`)

	rec := postWebhook(f, body, signWebhook(f.priv, ts, body), ts)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 so the provider stops retrying", rec.Code)
	}
	var ack struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if ack.Accepted {
		t.Error("unknown account must not be accepted")
	}
}

func TestDownloadRecordingBlockedByHold(t *testing.T) {
	f := newAPIFixture(t)
	call := f.seedCall(t, "call-1")
	recModel := f.seedRecording(t, call.ID, "recordings/rec-1.wav")

	holdRec := f.do(t, http.MethodPost, "/api/v1/holds", map[string]any{
		"resource_type": "recording",
		"resource_id":   fmt.Sprintf("%d", recModel.ID),
		"reason":        "litigation 2026-041",
	})
	if holdRec.Code != http.StatusCreated {
		t.Fatalf("create hold: status = %d, body %q", holdRec.Code, holdRec.Body.String())
	}

	path := fmt.Sprintf("/api/v1/recordings/%d/download", recModel.ID)
	rec := f.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("status = %d, want 423", rec.Code)
	}
	data, errMsg := decodeEnvelope(t, rec)
	if errMsg != "blocked by policy" {
		t.Errorf("error = %q", errMsg)
	}
	if !strings.Contains(string(data), `"decision":"BLOCK"`) {
		t.Errorf("packet missing from data: %s", data)
	}
	// The hold reason must not leak; only its hash travels.
	if strings.Contains(rec.Body.String(), "litigation") {
		t.Error("hold reason leaked into the decision packet")
	}
	if len(f.backend.reads) != 0 {
		t.Errorf("storage reads = %v, want none while blocked", f.backend.reads)
	}
}

func TestDownloadRecordingAfterHoldRelease(t *testing.T) {
	f := newAPIFixture(t)
	call := f.seedCall(t, "call-1")
	recModel := f.seedRecording(t, call.ID, "recordings/rec-1.wav")

	now := time.Now()
	hold := &models.LegalHold{
		OrgID:        "org-1",
		ResourceType: "recording",
		ResourceID:   fmt.Sprintf("%d", recModel.ID),
		Reason:       "audit",
		CreatedAt:    now,
	}
	if err := f.holds.Create(context.Background(), hold); err != nil {
		t.Fatalf("seeding hold: %v", err)
	}

	releaseRec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/holds/%d/release", hold.ID), nil)
	if releaseRec.Code != http.StatusOK {
		t.Fatalf("release: status = %d, body %q", releaseRec.Code, releaseRec.Body.String())
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/recordings/%d/download", recModel.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content-type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("RIFFfake-wav-bytes")) {
		t.Error("response body is not the stored blob")
	}
}

func TestCreateHoldConflict(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]any{"resource_type": "call", "resource_id": "7", "reason": "audit"}
	if rec := f.do(t, http.MethodPost, "/api/v1/holds", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/holds", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create: status = %d, want 409", rec.Code)
	}
}

func TestCreateTranscriptConfirmationFlow(t *testing.T) {
	f := newAPIFixture(t)
	call := f.seedCall(t, "call-1")
	path := fmt.Sprintf("/api/v1/calls/%d/transcripts", call.ID)

	// Low confidence without confirmation is held back.
	rec := f.do(t, http.MethodPost, path, map[string]any{
		"text":       "hello world",
		"confidence": 0.3,
	})
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, want 428", rec.Code)
	}
	if _, errMsg := decodeEnvelope(t, rec); errMsg != "confirmation required" {
		t.Errorf("error = %q", errMsg)
	}

	// Same request with confirm:true proceeds.
	rec = f.do(t, http.MethodPost, path, map[string]any{
		"text":       "hello world",
		"confidence": 0.3,
		"confirm":    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirmed: status = %d, body %q", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec)
	if !strings.Contains(string(data), `"decision":"REQUIRE_CONFIRMATION"`) {
		t.Errorf("packet missing from creation response: %s", data)
	}

	// High confidence needs no confirmation at all.
	rec = f.do(t, http.MethodPost, path, map[string]any{
		"text":       "clear audio",
		"confidence": 0.95,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("high confidence: status = %d", rec.Code)
	}
}

func TestCreateTranscriptBlockedByCallHold(t *testing.T) {
	f := newAPIFixture(t)
	call := f.seedCall(t, "call-1")

	holdBody := map[string]any{
		"resource_type": "call",
		"resource_id":   fmt.Sprintf("%d", call.ID),
		"reason":        "audit",
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/holds", holdBody); rec.Code != http.StatusCreated {
		t.Fatalf("create hold: status = %d", rec.Code)
	}

	// Confirmation cannot override a hard block.
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/calls/%d/transcripts", call.ID), map[string]any{
		"text":       "hello",
		"confidence": 0.99,
		"confirm":    true,
	})
	if rec.Code != http.StatusLocked {
		t.Fatalf("status = %d, want 423", rec.Code)
	}
}

func TestPlanSynthesis(t *testing.T) {
	f := newAPIFixture(t)

	// Excessive ambient noise blocks outright.
	rec := f.do(t, http.MethodPost, "/api/v1/synthesis/plan", map[string]any{
		"text":            "your appointment is confirmed",
		"ambient_noise":   0.9,
		"speaker_enabled": true,
	})
	if rec.Code != http.StatusLocked {
		t.Fatalf("noisy: status = %d, want 423", rec.Code)
	}

	// Disabled speaker requires confirmation.
	rec = f.do(t, http.MethodPost, "/api/v1/synthesis/plan", map[string]any{
		"text":          "your appointment is confirmed",
		"ambient_noise": 0.1,
	})
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("speaker off: status = %d, want 428", rec.Code)
	}

	// Quiet room, speaker on: allowed.
	rec = f.do(t, http.MethodPost, "/api/v1/synthesis/plan", map[string]any{
		"text":            "your appointment is confirmed",
		"ambient_noise":   0.1,
		"speaker_enabled": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("quiet: status = %d, body %q", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec)
	if !strings.Contains(string(data), `"decision":"ALLOW"`) {
		t.Errorf("packet missing: %s", data)
	}
}

func TestSendOutboundFailureShape(t *testing.T) {
	f := newAPIFixture(t)
	f.sender.err = errors.New("provider returned status 500")

	rec := f.do(t, http.MethodPost, "/api/v1/outbound", map[string]any{
		"channel":   "sms",
		"recipient": "+15550100",
		"body":      "reminder",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body %q", rec.Code, rec.Body.String())
	}
	data, errMsg := decodeEnvelope(t, rec)
	if errMsg == "" {
		t.Error("error half of envelope is empty")
	}
	// The failed event is still durably recorded and returned.
	if !strings.Contains(string(data), `"status":"failed"`) {
		t.Errorf("failed event missing from data: %s", data)
	}
}

func TestSendOutboundSuccess(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/outbound", map[string]any{
		"channel":   "sms",
		"recipient": "+15550100",
		"body":      "reminder",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec)
	if !strings.Contains(string(data), `"status":"sent"`) {
		t.Errorf("event not sent: %s", data)
	}
}

func TestSendOutboundInvalidChannel(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/outbound", map[string]any{
		"channel":   "pigeon",
		"recipient": "+15550100",
		"body":      "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListCallsRejectsUnknownState(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/calls?state=ringing", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
