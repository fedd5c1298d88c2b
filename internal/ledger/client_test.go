package ledger_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/services"
)

type fakeLedger struct {
	mu        sync.Mutex
	jobs      map[string]int64
	updates   []map[string]any
	files     map[int64][]string
	finalized []map[string]any
	logins    int
	token     string
	reject    int // number of 401s to return before accepting
	failJobs  bool
	auths     []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{jobs: map[string]int64{}, files: map[int64][]string{}, token: "tok-1"}
}

func (f *fakeLedger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/auth/service-token" {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["client_id"] != "worker" || body["client_secret"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.logins++
		f.token = fmt.Sprintf("tok-%d", f.logins)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": f.token})
		return
	}
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	if f.reject > 0 {
		f.reject--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/jobs/crear":
		if f.failJobs {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		key := fmt.Sprintf("%v|%v|%v", body["numero_expediente"], body["id_sesion"], body["tipo"])
		id, ok := f.jobs[key]
		if !ok {
			id = int64(len(f.jobs) + 1)
			f.jobs[key] = id
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": id})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/jobs/"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["path"] = r.URL.Path
		f.updates = append(f.updates, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/sesiones/"):
		id, _ := strconv.ParseInt(strings.Split(r.URL.Path, "/")[2], 10, 64)
		out := []map[string]string{}
		for _, kind := range f.files[id] {
			out = append(out, map[string]string{"tipo_archivo": kind})
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && r.URL.Path == "/archivos/":
		var body struct {
			SessionID int64  `json:"sesion_id"`
			Kind      string `json:"tipo_archivo"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.files[body.SessionID] = append(f.files[body.SessionID], body.Kind)
		_ = json.NewEncoder(w).Encode(map[string]int{"id": len(f.files[body.SessionID])})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/archivos/"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["path"] = r.URL.Path
		f.finalized = append(f.finalized, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	case r.URL.Path == "/infra/heartbeat":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func newClient(t *testing.T, fake *fakeLedger, withCreds bool) *ledger.Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	opts := ledger.Options{BaseURL: server.URL + "/", Timeout: 2 * time.Second}
	if withCreds {
		opts.ClientID = "worker"
		opts.ClientSecret = "secret"
	}
	return ledger.NewClient(opts, logging.NewNop())
}

var session = media.Session{Expediente: "EXP-09", ID: 42}

func TestCreateOrResetJobIsIdempotent(t *testing.T) {
	fake := newFakeLedger()
	client := newClient(t, fake, false)
	ctx := context.Background()

	first, err := client.CreateOrResetJob(ctx, session, media.KindAudio, "audio.mp4")
	if err != nil {
		t.Fatalf("CreateOrResetJob: %v", err)
	}
	second, err := client.CreateOrResetJob(ctx, session, media.KindAudio, "audio.mp4")
	if err != nil {
		t.Fatalf("CreateOrResetJob again: %v", err)
	}
	if first != second {
		t.Fatalf("expected same job id, got %d and %d", first, second)
	}
	other, err := client.CreateOrResetJob(ctx, session, media.KindVideo, "video.webm")
	if err != nil {
		t.Fatalf("CreateOrResetJob video: %v", err)
	}
	if other == first {
		t.Fatalf("expected distinct job for another kind")
	}
}

func TestCreateJobFailureIsLedgerError(t *testing.T) {
	fake := newFakeLedger()
	fake.failJobs = true
	client := newClient(t, fake, false)
	_, err := client.CreateOrResetJob(context.Background(), session, media.KindAudio, "audio.mp4")
	if !errors.Is(err, services.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestUnreachableLedger(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	client := ledger.NewClient(ledger.Options{BaseURL: url, Timeout: time.Second}, logging.NewNop())
	_, err := client.CreateOrResetJob(context.Background(), session, media.KindAudio, "audio.mp4")
	if !errors.Is(err, services.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestUpdateJobValidatesPairing(t *testing.T) {
	fake := newFakeLedger()
	client := newClient(t, fake, false)
	ctx := context.Background()

	cases := []ledger.JobUpdate{
		{ID: 1, State: ledger.JobCompleted, Error: "nope"},
		{ID: 1, State: ledger.JobError, Result: "x"},
		{ID: 1, State: ledger.JobError},
		{ID: 0, State: ledger.JobProcessing},
		{ID: 1, State: "bogus"},
	}
	for _, update := range cases {
		if err := client.UpdateJob(ctx, update); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", update, err)
		}
	}
	if len(fake.updates) != 0 {
		t.Fatalf("invalid updates reached the wire: %v", fake.updates)
	}

	if err := client.UpdateJob(ctx, ledger.JobUpdate{ID: 7, State: ledger.JobCompleted, Result: "archivos/EXP-09/42/audios/audio.mp4"}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	got := fake.updates[0]
	if got["path"] != "/jobs/7/actualizar" || got["estado"] != "completado" || got["resultado"] != "archivos/EXP-09/42/audios/audio.mp4" {
		t.Fatalf("unexpected update body %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Fatalf("completed update must not carry error: %v", got)
	}
}

func TestRegisterFileSkipsExistingKind(t *testing.T) {
	fake := newFakeLedger()
	client := newClient(t, fake, false)
	ctx := context.Background()

	created, err := client.RegisterFile(ctx, session, media.KindAudio, "archivos/EXP-09/42/audios/audio.mp4")
	if err != nil || !created {
		t.Fatalf("first RegisterFile = %v, %v", created, err)
	}
	created, err = client.RegisterFile(ctx, session, media.KindAudio, "archivos/EXP-09/42/audios/audio.mp4")
	if err != nil || created {
		t.Fatalf("second RegisterFile = %v, %v; want skip", created, err)
	}
	if len(fake.files[42]) != 1 {
		t.Fatalf("expected one registered file, got %v", fake.files[42])
	}
}

func TestFinalizeFileBody(t *testing.T) {
	fake := newFakeLedger()
	client := newClient(t, fake, false)
	if err := client.FinalizeFile(context.Background(), session, media.KindVideo, "archivos/EXP-09/42/videos/video.webm"); err != nil {
		t.Fatalf("FinalizeFile: %v", err)
	}
	got := fake.finalized[0]
	if got["path"] != "/archivos/42/video/actualizar_estado" {
		t.Fatalf("unexpected path %v", got["path"])
	}
	if got["conversion_completa"] != true || got["estado"] != "completado" {
		t.Fatalf("unexpected body %v", got)
	}
	if got["mensaje"] != "Archivo finalizado correctamente: archivos/EXP-09/42/videos/video.webm" {
		t.Fatalf("unexpected message %v", got["mensaje"])
	}
	if _, err := time.Parse(time.RFC3339, got["fecha_finalizacion"].(string)); err != nil {
		t.Fatalf("fecha_finalizacion not RFC3339: %v", err)
	}
}

func TestTokenCachedAndRefreshedOn401(t *testing.T) {
	fake := newFakeLedger()
	client := newClient(t, fake, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := client.Heartbeat(ctx, ledger.HeartbeatPayload{Worker: "w", Status: "alive", PID: 1}); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
	}
	if fake.logins != 1 {
		t.Fatalf("expected a single login, got %d", fake.logins)
	}
	if fake.auths[0] != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", fake.auths[0])
	}

	fake.reject = 1
	if err := client.Heartbeat(ctx, ledger.HeartbeatPayload{Worker: "w", Status: "alive"}); err != nil {
		t.Fatalf("Heartbeat after 401: %v", err)
	}
	if fake.logins != 2 {
		t.Fatalf("expected re-login after 401, got %d logins", fake.logins)
	}
	if last := fake.auths[len(fake.auths)-1]; last != "Bearer tok-2" {
		t.Fatalf("retry used %q", last)
	}

	fake.reject = 2
	err := client.Heartbeat(ctx, ledger.HeartbeatPayload{Worker: "w", Status: "alive"})
	if !errors.Is(err, services.ErrLedger) || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected a single retry then 401 error, got %v", err)
	}
}

func TestJWTExpiryHonoured(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims, _ := json.Marshal(map[string]int64{"exp": now.Add(45 * time.Second).Unix()})
	jwt := "h." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"

	logins := 0
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == "/auth/service-token" {
			logins++
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": jwt})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clock := now
	client := ledger.NewClient(ledger.Options{
		BaseURL:      server.URL,
		ClientID:     "worker",
		ClientSecret: "secret",
		Now:          func() time.Time { return clock },
	}, logging.NewNop())

	ctx := context.Background()
	if err := client.Heartbeat(ctx, ledger.HeartbeatPayload{}); err != nil {
		t.Fatal(err)
	}
	if err := client.Heartbeat(ctx, ledger.HeartbeatPayload{}); err != nil {
		t.Fatal(err)
	}
	if logins != 1 {
		t.Fatalf("expected cached token, got %d logins", logins)
	}
	// 45s expiry minus 30s skew: token is stale after 15s.
	clock = now.Add(20 * time.Second)
	if err := client.Heartbeat(ctx, ledger.HeartbeatPayload{}); err != nil {
		t.Fatal(err)
	}
	if logins != 2 {
		t.Fatalf("expected refresh near expiry, got %d logins", logins)
	}
}

func TestLoginFailureSurfacesAsLedgerError(t *testing.T) {
	fake := newFakeLedger()
	server := httptest.NewServer(fake)
	defer server.Close()
	client := ledger.NewClient(ledger.Options{BaseURL: server.URL, ClientID: "worker", ClientSecret: "wrong"}, logging.NewNop())
	_, err := client.CreateOrResetJob(context.Background(), session, media.KindAudio, "audio.mp4")
	if !errors.Is(err, services.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if len(fake.jobs) != 0 {
		t.Fatalf("no job should be created without a token")
	}
}
