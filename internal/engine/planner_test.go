package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRemote is an in-memory engine.RemoteClient used across engine tests.
type fakeRemote struct {
	files     map[int64]RemoteFile
	children  map[int64][]int64
	transfers map[int64]RemoteTransfer
	urls      map[int64]string

	deletedTransfers []int64
	deletedFiles     []int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:     make(map[int64]RemoteFile),
		children:  make(map[int64][]int64),
		transfers: make(map[int64]RemoteTransfer),
		urls:      make(map[int64]string),
	}
}

func (f *fakeRemote) addDir(id, parent int64, name string) {
	f.files[id] = RemoteFile{ID: id, ParentID: parent, Name: name, IsDir: true}
	if id != parent {
		f.children[parent] = append(f.children[parent], id)
	}
}

// fakeVideoExtensions mirrors the extensions put.io would classify as
// file_type "VIDEO" for files added in these tests via their name, since
// the fake stands in for put.io's own file_type field, which the planner
// reads to classify video (it looks at the extension only for subtitles).
var fakeVideoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".wmv": true, ".m4v": true, ".ts": true, ".webm": true,
}

func (f *fakeRemote) addFile(id, parent int64, name string, size int64) {
	fileType := "OTHER"
	if fakeVideoExtensions[strings.ToLower(filepath.Ext(name))] {
		fileType = "VIDEO"
	}
	f.files[id] = RemoteFile{ID: id, ParentID: parent, Name: name, Size: size, FileType: fileType}
	if id != parent {
		f.children[parent] = append(f.children[parent], id)
	}
}

func (f *fakeRemote) ListTransfers(ctx context.Context) ([]RemoteTransfer, error) {
	out := make([]RemoteTransfer, 0, len(f.transfers))
	for _, t := range f.transfers {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRemote) GetTransfer(ctx context.Context, id int64) (RemoteTransfer, error) {
	t, ok := f.transfers[id]
	if !ok {
		return RemoteTransfer{}, &notFoundErr{}
	}
	return t, nil
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string  { return "not found" }
func (e *notFoundErr) NotFound() bool { return true }

func (f *fakeRemote) ListFiles(ctx context.Context, parentID int64) (RemoteFile, []RemoteFile, error) {
	parent := f.files[parentID]
	var out []RemoteFile
	for _, id := range f.children[parentID] {
		out = append(out, f.files[id])
	}
	return parent, out, nil
}

func (f *fakeRemote) FileURL(ctx context.Context, fileID int64) (string, error) {
	return f.urls[fileID], nil
}

func (f *fakeRemote) DeleteTransfer(ctx context.Context, id int64) error {
	f.deletedTransfers = append(f.deletedTransfers, id)
	return nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, id int64) error {
	f.deletedFiles = append(f.deletedFiles, id)
	return nil
}

// TestPlannerSingleFileRootIsTopLevel mirrors scenario 1 of the design doc:
// a transfer whose RootFileID is itself the video file.
func TestPlannerSingleFileRootIsTopLevel(t *testing.T) {
	remote := newFakeRemote()
	remote.addFile(10, 0, "movie.mkv", 1000)
	remote.urls[10] = "https://dl/1"

	transfer := NewTransfer(1, "abcd1234", "movie", 0, 10)
	p := NewPlanner(remote, "/dl", nil)

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(targets) != 1 {
		t.Fatalf("len(targets) = %d, want 1: %+v", len(targets), targets)
	}
	got := targets[0]
	if got.Kind != KindVideo || got.LocalPath != filepath.Join("/dl", "movie.mkv") || !got.TopLevel {
		t.Fatalf("unexpected target: %+v", got)
	}
}

// TestPlannerFolderRootEmitsTopLevelDirectory mirrors scenario 2: a season
// folder whose Sample subtree is entirely elided by the skip list even
// though it contains a file that would otherwise classify as video.
func TestPlannerFolderRootEmitsTopLevelDirectory(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(20, 0, "Season 1")
	remote.addFile(21, 20, "E01.mkv", 1000)
	remote.addDir(22, 20, "Sample")
	remote.addFile(23, 22, "sample.mkv", 1)

	transfer := NewTransfer(1, "hash", "Show", 0, 20)
	p := NewPlanner(remote, "/dl", []string{"sample"})

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(targets) != 2 {
		t.Fatalf("len(targets) = %d, want 2 (Sample subtree elided): %+v", len(targets), targets)
	}
	if targets[0].Kind != KindFolder || targets[0].LocalPath != filepath.Join("/dl", "Season 1") || !targets[0].TopLevel {
		t.Fatalf("targets[0] = %+v, want top-level Directory at /dl/Season 1", targets[0])
	}
	if targets[1].Kind != KindVideo || targets[1].LocalPath != filepath.Join("/dl", "Season 1", "E01.mkv") || targets[1].TopLevel {
		t.Fatalf("targets[1] = %+v, want non-top-level File at /dl/Season 1/E01.mkv", targets[1])
	}
}

// TestPlannerClassifiesVideoAndSubtitle checks that an unrecognized
// extension directly under a folder root is dropped silently while video
// and subtitle siblings survive.
func TestPlannerClassifiesVideoAndSubtitle(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Show")
	remote.addFile(2, 1, "Show.S01E01.mkv", 1000)
	remote.addFile(3, 1, "Show.S01E01.srt", 10)
	remote.addFile(4, 1, "Show.S01E01.nfo", 1)

	transfer := NewTransfer(100, "hash", "Show", 0, 1)
	p := NewPlanner(remote, "/downloads", nil)

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// The root Directory target plus the two classified files; the nfo is
	// dropped.
	if len(targets) != 3 {
		t.Fatalf("len(targets) = %d, want 3: %+v", len(targets), targets)
	}
	byName := map[string]*DownloadTarget{}
	for _, tgt := range targets {
		byName[tgt.RemoteName] = tgt
	}
	if byName["Show.S01E01.mkv"].Kind != KindVideo {
		t.Errorf("expected mkv to classify as video")
	}
	if byName["Show.S01E01.srt"].Kind != KindSubtitle {
		t.Errorf("expected srt to classify as subtitle")
	}
	if byName["Show.S01E01.mkv"].TopLevel {
		t.Errorf("nested file should not be TopLevel; the enclosing folder is")
	}
	if !byName["Show"].TopLevel {
		t.Errorf("expected root folder to be TopLevel")
	}
}

// TestPlannerSkipDirectoryElidesSubtreeUnconditionally verifies the
// outer-only skip filter: a skip-matching folder is dropped along with
// everything beneath it, even a file that would otherwise survive.
func TestPlannerSkipDirectoryElidesSubtreeUnconditionally(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Movie")
	remote.addDir(2, 1, "Sample")
	remote.addFile(3, 2, "sample.mkv", 1)
	remote.addDir(4, 1, "Extras")
	remote.addFile(5, 4, "extras.mkv", 1)
	remote.addFile(6, 1, "Movie.mkv", 1000)

	transfer := NewTransfer(100, "hash", "Movie", 0, 1)
	p := NewPlanner(remote, "/downloads", []string{"sample", "extras"})

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for _, tgt := range targets {
		if tgt.RemoteName == "sample.mkv" || tgt.RemoteName == "extras.mkv" || tgt.RemoteName == "Sample" || tgt.RemoteName == "Extras" {
			t.Fatalf("skip-directory subtree should have been elided entirely, found %s", tgt.RemoteName)
		}
	}

	found := false
	for _, tgt := range targets {
		if tgt.RemoteName == "Movie.mkv" {
			found = true
			if tgt.LocalPath != filepath.Join("/downloads", "Movie", "Movie.mkv") {
				t.Errorf("LocalPath = %s", tgt.LocalPath)
			}
		}
	}
	if !found {
		t.Fatal("expected Movie.mkv to survive planning")
	}
}

// TestPlannerSuppressesEmptyNonSkipFolder checks the separate empty-folder
// suppression rule: a folder that doesn't match the skip list but whose
// every descendant was dropped (unclassified extensions, here) never
// becomes a Directory target itself.
func TestPlannerSuppressesEmptyNonSkipFolder(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Movie")
	remote.addDir(2, 1, "Info")
	remote.addFile(3, 2, "readme.nfo", 1)
	remote.addFile(4, 1, "Movie.mkv", 1000)

	transfer := NewTransfer(100, "hash", "Movie", 0, 1)
	p := NewPlanner(remote, "/downloads", nil)

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, tgt := range targets {
		if tgt.RemoteName == "Info" || tgt.RemoteName == "readme.nfo" {
			t.Fatalf("empty non-skip folder should have been suppressed, found %s", tgt.RemoteName)
		}
	}
}

// TestPlannerSkipRootWithNoSurvivorsYieldsEmptyPlan covers the "Skip-root"
// boundary behavior: the transfer's own root folder matches the skip list,
// so the whole plan is empty.
func TestPlannerSkipRootWithNoSurvivorsYieldsEmptyPlan(t *testing.T) {
	remote := newFakeRemote()
	remote.addDir(1, 0, "Sample")
	remote.addFile(2, 1, "sample.mkv", 1)

	transfer := NewTransfer(100, "hash", "Sample", 0, 1)
	p := NewPlanner(remote, "/downloads", []string{"sample"})

	targets, err := p.Plan(context.Background(), transfer)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected empty plan for a skip-matching root, got %+v", targets)
	}
}
