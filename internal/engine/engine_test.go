package engine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/othala/internal/auth"
	"github.com/starford/othala/internal/eventlog"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/message"
	"github.com/starford/othala/internal/store"
)

type testEnv struct {
	eng    *Engine
	owner  message.Signer
	tenant string
	msgs   *store.Badger
	idx    *index.DB
	events *eventlog.DB
}

func tempSQLite(t *testing.T, pattern string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	msgs, err := store.OpenBadgerInMemory()
	if err != nil {
		t.Fatalf("OpenBadgerInMemory: %v", err)
	}
	t.Cleanup(func() { msgs.Close() })

	idx, err := index.Open(tempSQLite(t, "othala-engine-index-*.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	events, err := eventlog.Open(tempSQLite(t, "othala-engine-events-*.db"))
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { events.Close() })

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	owner := message.NewSigner(priv)

	eng := New(Deps{
		Tenants:  []string{owner.DID},
		Messages: msgs,
		Data:     msgs,
		Index:    idx,
		Events:   events,
		Gate:     auth.NewGate(identity.KeyResolver{}, idx, msgs),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &testEnv{
		eng:    eng,
		owner:  owner,
		tenant: owner.DID,
		msgs:   msgs,
		idx:    idx,
		events: events,
	}
}

func newSigner(t *testing.T) message.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return message.NewSigner(priv)
}

func (te *testEnv) process(t *testing.T, env *message.Envelope, data []byte) Reply {
	t.Helper()
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return te.eng.Process(context.Background(), te.tenant, raw, data)
}

func (te *testEnv) mustAdmit(t *testing.T, env *message.Envelope, data []byte) string {
	t.Helper()
	reply := te.process(t, env, data)
	if reply.Status.Code != http.StatusAccepted {
		t.Fatalf("admission failed: %+v", reply.Status)
	}
	cid, err := env.CID()
	if err != nil {
		t.Fatal(err)
	}
	return cid
}

func (te *testEnv) query(t *testing.T, as message.Signer, filter message.RecordFilter) Reply {
	t.Helper()
	env, err := as.BuildRecordsQuery(filter)
	if err != nil {
		t.Fatal(err)
	}
	return te.process(t, env, nil)
}

func at(day int) time.Time {
	return time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC)
}

func TestWrite_Admitted(t *testing.T) {
	te := newTestEnv(t)

	env, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID:    "r1",
		Data:        []byte("hello"),
		DataFormat:  "text/plain",
		Schema:      "notes/note",
		DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	cid := te.mustAdmit(t, env, []byte("hello"))

	reply := te.query(t, te.owner, message.RecordFilter{RecordID: "r1"})
	if reply.Status.Code != http.StatusOK {
		t.Fatalf("query: %+v", reply.Status)
	}
	if len(reply.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(reply.Entries))
	}
	got := reply.Entries[0]
	if got.CID != cid || got.RecordID != "r1" || string(got.Data) != "hello" {
		t.Errorf("entry = %+v", got)
	}

	events, err := te.eng.Events(te.tenant, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].CID != cid {
		t.Errorf("event log = %+v", events)
	}
}

func TestWrite_ReplayConflicts(t *testing.T) {
	te := newTestEnv(t)

	env, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, env, nil)

	reply := te.process(t, env, nil)
	if reply.Status.Code != http.StatusConflict {
		t.Fatalf("replay = %+v, want 409", reply.Status)
	}

	events, _ := te.eng.Events(te.tenant, 0)
	if len(events) != 1 {
		t.Errorf("replay appended to event log: %+v", events)
	}
}

func TestWrite_LastWriterWins(t *testing.T) {
	te := newTestEnv(t)

	w1, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v1"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	c1 := te.mustAdmit(t, w1, []byte("v1"))

	w2, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v2"), DateCreated: at(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	c2 := te.mustAdmit(t, w2, []byte("v2"))

	reply := te.query(t, te.owner, message.RecordFilter{RecordID: "r1"})
	if len(reply.Entries) != 1 || reply.Entries[0].CID != c2 || string(reply.Entries[0].Data) != "v2" {
		t.Fatalf("current state = %+v", reply.Entries)
	}

	// The superseded first write survives as anchor: message retained,
	// payload discarded, row demoted.
	if _, err := te.msgs.Get(te.tenant, c1); err != nil {
		t.Errorf("anchor message pruned: %v", err)
	}
	if _, err := te.msgs.GetData(te.tenant, c1); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("anchor payload retained: %v", err)
	}
	entries, err := te.idx.Entries(te.tenant, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("index history = %+v", entries)
	}
	if entries[0].CID != c1 || entries[0].Current {
		t.Errorf("anchor row not demoted: %+v", entries[0])
	}
	if entries[1].CID != c2 || !entries[1].Current {
		t.Errorf("winner row not current: %+v", entries[1])
	}
}

func TestWrite_StaleRejected(t *testing.T) {
	te := newTestEnv(t)

	w2, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v2"), DateCreated: at(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	c2 := te.mustAdmit(t, w2, []byte("v2"))

	w1, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v1"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	reply := te.process(t, w1, []byte("v1"))
	if reply.Status.Code != http.StatusConflict {
		t.Fatalf("stale write = %+v, want 409", reply.Status)
	}

	// Rejection leaves no trace.
	c1, _ := w1.CID()
	if _, err := te.msgs.Get(te.tenant, c1); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("rejected message persisted: %v", err)
	}
	events, _ := te.eng.Events(te.tenant, 0)
	if len(events) != 1 || events[0].CID != c2 {
		t.Errorf("event log polluted by rejection: %+v", events)
	}
}

func TestWrite_TimestampTieBrokenByCID(t *testing.T) {
	te := newTestEnv(t)

	a, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("a"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("b"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	ca, _ := a.CID()
	cb, _ := b.CID()
	winner, loser := a, b
	winnerData, loserData := []byte("a"), []byte("b")
	winnerCID := ca
	if cb > ca {
		winner, loser = b, a
		winnerData, loserData = loserData, winnerData
		winnerCID = cb
	}

	// Loser admitted first, winner overtakes it.
	if te.process(t, loser, loserData).Status.Code != http.StatusAccepted {
		t.Fatal("first admission should succeed")
	}
	if te.process(t, winner, winnerData).Status.Code != http.StatusAccepted {
		t.Fatal("greater cid at equal timestamp should win")
	}
	// The loser can never displace the winner again.
	if te.process(t, loser, loserData).Status.Code != http.StatusConflict {
		t.Error("lesser cid re-admitted")
	}

	reply := te.query(t, te.owner, message.RecordFilter{RecordID: "r1"})
	if len(reply.Entries) != 1 || reply.Entries[0].CID != winnerCID {
		t.Errorf("current = %+v, want %s", reply.Entries, winnerCID)
	}
}

func TestWrite_DataCIDMismatch(t *testing.T) {
	te := newTestEnv(t)
	env, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("declared"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	reply := te.process(t, env, []byte("smuggled"))
	if reply.Status.Code != http.StatusBadRequest {
		t.Errorf("mismatched payload = %+v, want 400", reply.Status)
	}
}

func TestDelete_RemovesRecord(t *testing.T) {
	te := newTestEnv(t)

	w1, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v1"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	c1 := te.mustAdmit(t, w1, []byte("v1"))

	del, err := te.owner.BuildRecordsDelete("r1", at(2))
	if err != nil {
		t.Fatal(err)
	}
	dcid := te.mustAdmit(t, del, nil)

	reply := te.query(t, te.owner, message.RecordFilter{RecordID: "r1"})
	if len(reply.Entries) != 0 {
		t.Fatalf("deleted record still visible: %+v", reply.Entries)
	}

	// Anchor and tombstone survive; the anchor's payload does not.
	if _, err := te.msgs.Get(te.tenant, c1); err != nil {
		t.Errorf("anchor message pruned: %v", err)
	}
	if _, err := te.msgs.Get(te.tenant, dcid); err != nil {
		t.Errorf("tombstone message missing: %v", err)
	}
	if _, err := te.msgs.GetData(te.tenant, c1); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("anchor payload retained: %v", err)
	}
}

func TestDelete_IntermediateWriteFullyPruned(t *testing.T) {
	te := newTestEnv(t)

	w1, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v1"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	c1 := te.mustAdmit(t, w1, []byte("v1"))

	w2, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("v2"), DateCreated: at(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	c2 := te.mustAdmit(t, w2, []byte("v2"))

	del, err := te.owner.BuildRecordsDelete("r1", at(3))
	if err != nil {
		t.Fatal(err)
	}
	dcid := te.mustAdmit(t, del, nil)

	// The intermediate write disappears entirely; anchor and tombstone stay.
	if _, err := te.msgs.Get(te.tenant, c2); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("intermediate message retained: %v", err)
	}
	if _, err := te.msgs.GetData(te.tenant, c2); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("intermediate payload retained: %v", err)
	}
	if _, err := te.msgs.Get(te.tenant, c1); err != nil {
		t.Errorf("anchor message pruned: %v", err)
	}

	entries, err := te.idx.Entries(te.tenant, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].CID != c1 || entries[1].CID != dcid {
		t.Fatalf("index history = %+v", entries)
	}
	for _, e := range entries {
		if e.Current {
			t.Errorf("row still current after delete: %+v", e)
		}
	}

	// The event log keeps the full admission history for sync.
	events, _ := te.eng.Events(te.tenant, 0)
	if len(events) != 3 || events[0].CID != c1 || events[1].CID != c2 || events[2].CID != dcid {
		t.Errorf("event log = %+v", events)
	}
}

func TestDelete_DominatesStaleWrite(t *testing.T) {
	te := newTestEnv(t)

	w1, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, w1, nil)

	del, err := te.owner.BuildRecordsDelete("r1", at(5))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, del, nil)

	stale, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("zombie"), DateCreated: at(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	reply := te.process(t, stale, []byte("zombie"))
	if reply.Status.Code != http.StatusConflict {
		t.Fatalf("write older than tombstone = %+v, want 409", reply.Status)
	}
	if len(te.query(t, te.owner, message.RecordFilter{RecordID: "r1"}).Entries) != 0 {
		t.Error("deleted record resurrected")
	}
}

func TestDelete_Nonexistent(t *testing.T) {
	te := newTestEnv(t)

	del, err := te.owner.BuildRecordsDelete("ghost", at(1))
	if err != nil {
		t.Fatal(err)
	}
	reply := te.process(t, del, nil)
	if reply.Status.Code != http.StatusNotFound {
		t.Fatalf("delete of nothing = %+v, want 404", reply.Status)
	}

	// The rejection is side-effect free.
	dcid, _ := del.CID()
	if _, err := te.msgs.Get(te.tenant, dcid); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("rejected tombstone persisted: %v", err)
	}
	events, _ := te.eng.Events(te.tenant, 0)
	if len(events) != 0 {
		t.Errorf("event log = %+v", events)
	}
}

func TestDelete_AlreadyDeleted(t *testing.T) {
	te := newTestEnv(t)

	w, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, w, nil)

	first, err := te.owner.BuildRecordsDelete("r1", at(2))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, first, nil)

	second, err := te.owner.BuildRecordsDelete("r1", at(3))
	if err != nil {
		t.Fatal(err)
	}
	if reply := te.process(t, second, nil); reply.Status.Code != http.StatusNotFound {
		t.Errorf("second delete = %+v, want 404", reply.Status)
	}
}

func TestWrite_NewerThanTombstoneRecreates(t *testing.T) {
	te := newTestEnv(t)

	w, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, w, nil)

	del, err := te.owner.BuildRecordsDelete("r1", at(2))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, del, nil)

	fresh, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "r1", Data: []byte("again"), DateCreated: at(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	cid := te.mustAdmit(t, fresh, []byte("again"))

	reply := te.query(t, te.owner, message.RecordFilter{RecordID: "r1"})
	if len(reply.Entries) != 1 || reply.Entries[0].CID != cid {
		t.Errorf("recreated record = %+v", reply.Entries)
	}
}

func TestProcess_TenantNotServed(t *testing.T) {
	te := newTestEnv(t)
	env, err := te.owner.BuildRecordsWrite(message.WriteOptions{DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(env)
	reply := te.eng.Process(context.Background(), "did:key:zsomeoneelse", raw, nil)
	if reply.Status.Code != http.StatusUnauthorized {
		t.Errorf("foreign tenant = %+v, want 401", reply.Status)
	}
}

func TestProcess_Malformed(t *testing.T) {
	te := newTestEnv(t)

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"no descriptor", `{"authorization":{"signer":"did:key:zA","signature":"00"}}`},
		{"no method", `{"descriptor":{"interface":"Records"},"authorization":{"signer":"did:key:zA","signature":"00"}}`},
		{"unhandled pair", `{"descriptor":{"interface":"Records","method":"Prune","dateCreated":"x"},"authorization":{"signer":"did:key:zA","signature":"00"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply := te.eng.Process(context.Background(), te.tenant, json.RawMessage(tc.raw), nil)
			if reply.Status.Code != http.StatusBadRequest {
				t.Errorf("reply = %+v, want 400", reply.Status)
			}
		})
	}
}

func TestWrite_StrangerUnauthorized(t *testing.T) {
	te := newTestEnv(t)
	stranger := newSigner(t)

	env, err := stranger.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	reply := te.process(t, env, nil)
	if reply.Status.Code != http.StatusUnauthorized {
		t.Fatalf("stranger write = %+v, want 401", reply.Status)
	}
	if events, _ := te.eng.Events(te.tenant, 0); len(events) != 0 {
		t.Errorf("unauthorized write reached the event log: %+v", events)
	}
}

func TestWrite_ProtocolGrant(t *testing.T) {
	te := newTestEnv(t)
	uri := "https://example.com/chat"

	conf, err := te.owner.BuildProtocolsConfigure(uri, message.ProtocolDefinition{
		Rules: []message.AccessRule{
			{Schema: "chat/message", Actor: message.ActorAnyone, Actions: []string{message.ActionWrite}},
		},
	}, at(1))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, conf, nil)

	stranger := newSigner(t)
	granted, err := stranger.BuildRecordsWrite(message.WriteOptions{
		RecordID: "m1", Protocol: uri, Schema: "chat/message", DateCreated: at(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, granted, nil)

	ungranted, err := stranger.BuildRecordsWrite(message.WriteOptions{
		RecordID: "m2", Protocol: uri, Schema: "chat/secret", DateCreated: at(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply := te.process(t, ungranted, nil); reply.Status.Code != http.StatusUnauthorized {
		t.Errorf("ungranted schema = %+v, want 401", reply.Status)
	}
}

func TestQuery_Visibility(t *testing.T) {
	te := newTestEnv(t)

	private, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "private", Data: []byte("secret"), DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, private, []byte("secret"))

	public, err := te.owner.BuildRecordsWrite(message.WriteOptions{
		RecordID: "public", Data: []byte("open"), Published: true, DateCreated: at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, public, []byte("open"))

	owner := te.query(t, te.owner, message.RecordFilter{})
	if len(owner.Entries) != 2 {
		t.Errorf("owner sees %d records, want 2", len(owner.Entries))
	}

	stranger := te.query(t, newSigner(t), message.RecordFilter{})
	if len(stranger.Entries) != 1 || stranger.Entries[0].RecordID != "public" {
		t.Errorf("stranger sees %+v, want only the published record", stranger.Entries)
	}
}

func TestProtocolsConfigure_LastWriterWins(t *testing.T) {
	te := newTestEnv(t)
	uri := "https://example.com/chat"

	open := message.ProtocolDefinition{Rules: []message.AccessRule{
		{Schema: "chat/message", Actor: message.ActorAnyone, Actions: []string{message.ActionWrite}},
	}}
	closed := message.ProtocolDefinition{Rules: []message.AccessRule{
		{Schema: "chat/message", Actor: message.ActorOwner, Actions: []string{message.ActionWrite}},
	}}

	first, err := te.owner.BuildProtocolsConfigure(uri, open, at(1))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, first, nil)

	second, err := te.owner.BuildProtocolsConfigure(uri, closed, at(2))
	if err != nil {
		t.Fatal(err)
	}
	te.mustAdmit(t, second, nil)

	// The newest configuration governs: the open grant is gone.
	stranger := newSigner(t)
	env, err := stranger.BuildRecordsWrite(message.WriteOptions{
		RecordID: "m1", Protocol: uri, Schema: "chat/message", DateCreated: at(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply := te.process(t, env, nil); reply.Status.Code != http.StatusUnauthorized {
		t.Errorf("write under revoked grant = %+v, want 401", reply.Status)
	}

	// A stale configure cannot roll the protocol back.
	stale, err := te.owner.BuildProtocolsConfigure(uri, open, at(1))
	if err != nil {
		t.Fatal(err)
	}
	if reply := te.process(t, stale, nil); reply.Status.Code != http.StatusConflict {
		t.Errorf("stale configure = %+v, want 409", reply.Status)
	}
}

func TestProtocolsConfigure_NonOwnerRejected(t *testing.T) {
	te := newTestEnv(t)
	stranger := newSigner(t)

	env, err := stranger.BuildProtocolsConfigure("https://example.com/chat", message.ProtocolDefinition{}, at(1))
	if err != nil {
		t.Fatal(err)
	}
	if reply := te.process(t, env, nil); reply.Status.Code != http.StatusUnauthorized {
		t.Errorf("stranger configure = %+v, want 401", reply.Status)
	}
}

func TestConcurrentReplay_SingleAdmission(t *testing.T) {
	te := newTestEnv(t)

	env, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = te.eng.Process(context.Background(), te.tenant, raw, nil).Status.Code
		}(i)
	}
	wg.Wait()

	admitted, conflicted := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusAccepted:
			admitted++
		case http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if admitted != 1 || conflicted != n-1 {
		t.Errorf("admitted=%d conflicted=%d, want exactly one admission", admitted, conflicted)
	}

	events, _ := te.eng.Events(te.tenant, 0)
	if len(events) != 1 {
		t.Errorf("event log holds %d entries, want 1", len(events))
	}
}

func TestConcurrentWrites_DeterministicWinner(t *testing.T) {
	te := newTestEnv(t)

	a, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", Data: []byte("a"), DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := te.owner.BuildRecordsWrite(message.WriteOptions{RecordID: "r1", Data: []byte("b"), DateCreated: at(1)})
	if err != nil {
		t.Fatal(err)
	}
	ca, _ := a.CID()
	cb, _ := b.CID()
	want := ca
	if cb > ca {
		want = cb
	}

	rawA, _ := json.Marshal(a)
	rawB, _ := json.Marshal(b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		te.eng.Process(context.Background(), te.tenant, rawA, []byte("a"))
	}()
	go func() {
		defer wg.Done()
		te.eng.Process(context.Background(), te.tenant, rawB, []byte("b"))
	}()
	wg.Wait()

	// Regardless of interleaving exactly one row is current, and it is the
	// greatest (dateCreated, cid) message.
	rows, err := te.idx.Query(te.tenant, index.Filter{RecordID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].CID != want {
		t.Errorf("current = %+v, want %s", rows, want)
	}
}

func TestEvents_Watermark(t *testing.T) {
	te := newTestEnv(t)

	var cids []string
	for i := 1; i <= 3; i++ {
		env, err := te.owner.BuildRecordsWrite(message.WriteOptions{DateCreated: at(i)})
		if err != nil {
			t.Fatal(err)
		}
		cids = append(cids, te.mustAdmit(t, env, nil))
	}

	tail, err := te.eng.Events(te.tenant, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].CID != cids[1] || tail[1].CID != cids[2] {
		t.Errorf("tail = %+v", tail)
	}

	if _, err := te.eng.Events("did:key:zother", 0); err == nil {
		t.Error("foreign tenant read the event log")
	}
}
