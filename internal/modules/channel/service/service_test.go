package service

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/reshetovitsme/notify-relay/internal/modules/channel/domain"
	channelRepo "github.com/reshetovitsme/notify-relay/internal/modules/channel/repository"
	relayerrors "github.com/reshetovitsme/notify-relay/internal/shared/errors"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{128}$`)

// failingRepo wraps a real repository and fails writes on demand.
type failingRepo struct {
	channelRepo.Repository
	failWrites bool
}

func (r *failingRepo) Write(id string, data []byte) error {
	if r.failWrites {
		return relayerrors.IO(errors.New("disk full"))
	}
	return r.Repository.Write(id, data)
}

func newRegistry(t *testing.T) (*Service, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "channels")
	s := New(channelRepo.NewFileStorage(dir), nil)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s, dir
}

func reload(t *testing.T, dir string) *Service {
	t.Helper()
	s := New(channelRepo.NewFileStorage(dir), nil)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func sameChannel(t *testing.T, got, want *domain.Channel) {
	t.Helper()
	if got.ID() != want.ID() || got.CreatorID() != want.CreatorID() {
		t.Fatalf("got channel (%s, %d), want (%s, %d)", got.ID(), got.CreatorID(), want.ID(), want.CreatorID())
	}
	if !slices.Equal(got.SubscriberIDs(), want.SubscriberIDs()) {
		t.Fatalf("subscribers = %v, want %v", got.SubscriberIDs(), want.SubscriberIDs())
	}
}

func TestCreateAndGet(t *testing.T) {
	s, dir := newRegistry(t)

	for _, creatorID := range []int64{1, 0, -1001234567890} {
		ch, err := s.Create(creatorID, true)
		if err != nil {
			t.Fatalf("Create(%d): %v", creatorID, err)
		}
		if !hexID.MatchString(ch.ID()) {
			t.Fatalf("id %q is not 128 lowercase hex characters", ch.ID())
		}

		got, ok := s.Get(ch.ID())
		if !ok {
			t.Fatalf("Get(%s) missing", ch.ID())
		}
		sameChannel(t, got, ch)

		upper, ok := s.Get(strings.ToUpper(ch.ID()))
		if !ok || upper != got {
			t.Fatal("upper-case lookup did not return the same channel")
		}
		if !s.Has(" " + strings.ToUpper(ch.ID()) + " ") {
			t.Fatal("Has with padded upper-case id = false")
		}

		if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); err != nil {
			t.Fatalf("record file missing: %v", err)
		}
	}
}

func TestCreateWithoutPersist(t *testing.T) {
	s, dir := newRegistry(t)

	ch, err := s.Create(1, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); !os.IsNotExist(err) {
		t.Fatalf("record written without persist: %v", err)
	}

	if err := s.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); err != nil {
		t.Fatalf("record missing after SaveAll: %v", err)
	}
}

func TestReloadRestoresChannels(t *testing.T) {
	s, dir := newRegistry(t)

	ch, err := s.Create(1, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ch.AddSubscriber(2)
	if err := s.Save(ch.ID()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := reload(t, dir)
	got, ok := restored.Get(ch.ID())
	if !ok {
		t.Fatal("channel not restored")
	}
	sameChannel(t, got, ch)
}

func TestDeleteThenSaveRemovesRecord(t *testing.T) {
	s, dir := newRegistry(t)

	ch, err := s.Create(1, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !s.Delete(strings.ToUpper(ch.ID())) {
		t.Fatal("Delete = false for existing channel")
	}
	if s.Delete(ch.ID()) {
		t.Fatal("Delete = true for already deleted channel")
	}
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); err != nil {
		t.Fatalf("Delete alone must not touch the record: %v", err)
	}

	if err := s.Save(ch.ID()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); !os.IsNotExist(err) {
		t.Fatalf("record still present after save: %v", err)
	}

	if reload(t, dir).Has(ch.ID()) {
		t.Fatal("deleted channel resurrected by reload")
	}
}

func TestRemove(t *testing.T) {
	s, dir := newRegistry(t)

	ch, err := s.Create(1, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	removed, err := s.Remove(ch.ID())
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if s.Has(ch.ID()) {
		t.Fatal("channel still in memory")
	}
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); !os.IsNotExist(err) {
		t.Fatalf("record still present: %v", err)
	}

	removed, err = s.Remove(ch.ID())
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
}

func TestLoadAllDeletesInvalidRecords(t *testing.T) {
	s, dir := newRegistry(t)

	good, err := s.Create(1, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	badPath := filepath.Join(dir, "deadbeef.json")
	if err := os.WriteFile(badPath, []byte(`{"id": 12}`), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := New(channelRepo.NewFileStorage(dir), nil)
	loaded, err := fresh.LoadAll(true)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d channels, want 1", len(loaded))
	}
	sameChannel(t, loaded[good.ID()], good)
	if _, err := os.Stat(badPath); !os.IsNotExist(err) {
		t.Fatalf("malformed record not deleted: %v", err)
	}
}

func TestLoadAllStrictAborts(t *testing.T) {
	s, dir := newRegistry(t)

	if _, err := s.Create(1, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	badPath := filepath.Join(dir, "deadbeef.json")
	if err := os.WriteFile(badPath, []byte(`not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := New(channelRepo.NewFileStorage(dir), nil)
	if _, err := fresh.LoadAll(false); !errors.Is(err, relayerrors.ErrValidation) {
		t.Fatalf("LoadAll(false) = %v, want ErrValidation", err)
	}
	if _, err := os.Stat(badPath); err != nil {
		t.Fatalf("strict load must keep the file: %v", err)
	}
}

func TestLoadRejectsMismatchedID(t *testing.T) {
	_, dir := newRegistry(t)

	if err := os.WriteFile(filepath.Join(dir, "aa.json"), []byte(`{"id":"bb","creatorId":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fresh := New(channelRepo.NewFileStorage(dir), nil)
	if _, err := fresh.Load("AA"); !errors.Is(err, relayerrors.ErrValidation) {
		t.Fatalf("Load = %v, want ErrValidation", err)
	}
	if _, err := fresh.Load("cc"); !errors.Is(err, relayerrors.ErrNotFound) {
		t.Fatalf("Load missing = %v, want ErrNotFound", err)
	}
}

func TestSaveFailurePropagates(t *testing.T) {
	repo := &failingRepo{Repository: channelRepo.NewFileStorage(t.TempDir())}
	s := New(repo, nil)

	repo.failWrites = true
	ch, err := s.Create(1, true)
	if !errors.Is(err, relayerrors.ErrIO) {
		t.Fatalf("Create = %v, want ErrIO", err)
	}
	if ch == nil || !s.Has(ch.ID()) {
		t.Fatal("channel should stay in memory after a failed save")
	}
	if err := s.SaveAll(); !errors.Is(err, relayerrors.ErrIO) {
		t.Fatalf("SaveAll = %v, want ErrIO", err)
	}
}

func TestSubscribedBy(t *testing.T) {
	s, _ := newRegistry(t)

	a, _ := s.Create(1, false)
	b, _ := s.Create(2, false)
	b.AddSubscriber(1)
	if _, err := s.Create(3, false); err != nil {
		t.Fatal(err)
	}

	got := s.SubscribedBy(1)
	if len(got) != 2 {
		t.Fatalf("SubscribedBy(1) returned %d channels, want 2", len(got))
	}
	ids := []string{got[0].ID(), got[1].ID()}
	want := []string{a.ID(), b.ID()}
	slices.Sort(want)
	if !slices.Equal(ids, want) {
		t.Fatalf("SubscribedBy(1) = %v, want %v", ids, want)
	}
}

func TestSnapshotter(t *testing.T) {
	s, dir := newRegistry(t)

	ch, err := s.Create(1, false)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := NewSnapshotter(s, "@every 1h")
	if err != nil {
		t.Fatalf("NewSnapshotter: %v", err)
	}
	snap.Run()
	if _, err := os.Stat(filepath.Join(dir, ch.ID()+".json")); err != nil {
		t.Fatalf("snapshot did not save channel: %v", err)
	}

	if _, err := NewSnapshotter(s, "every now and then"); !errors.Is(err, relayerrors.ErrConfiguration) {
		t.Fatalf("NewSnapshotter(bad) = %v, want ErrConfiguration", err)
	}
}
