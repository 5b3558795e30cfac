package engine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dlbridge/putioarr/internal/log"
)

var subtitleExtensions = map[string]bool{
	".srt": true,
	".sub": true,
	".vtt": true,
	".ssa": true,
	".ass": true,
}

func isSubtitle(name string) bool {
	return subtitleExtensions[strings.ToLower(filepath.Ext(name))]
}

// classify decides what a non-folder remote node becomes in the plan.
// put.io's own file_type classification (wire field file_type, "VIDEO"
// for the media payload) is authoritative; subtitles are the one
// exception, detected by filename extension since put.io does not report
// a distinct subtitle file_type.
func classify(node RemoteFile) (TargetKind, bool) {
	if isSubtitle(node.Name) {
		return KindSubtitle, true
	}
	if strings.EqualFold(node.FileType, "VIDEO") {
		return KindVideo, true
	}
	return 0, false
}

// shouldSkipDirectory reports whether a directory name matches one of the
// configured skip patterns (case-insensitive substring match).
func shouldSkipDirectory(name string, skipDirs []string) bool {
	lower := strings.ToLower(name)
	for _, skip := range skipDirs {
		if strings.Contains(lower, strings.ToLower(skip)) {
			return true
		}
	}
	return false
}

// Planner walks a transfer's remote file tree and produces the list of
// DownloadTargets the fetch workers will pull to local disk.
type Planner struct {
	remote       RemoteClient
	downloadRoot string
	skipDirs     []string
}

// NewPlanner builds a Planner rooted at downloadRoot, eliding any
// directory whose name matches skipDirs.
func NewPlanner(remote RemoteClient, downloadRoot string, skipDirs []string) *Planner {
	return &Planner{remote: remote, downloadRoot: downloadRoot, skipDirs: skipDirs}
}

var errRootParentMismatch = planMismatchError{}

type planMismatchError struct{}

func (planMismatchError) Error() string { return "root folder parent_id no longer matches save_parent_id" }

// Plan recursively walks transfer's remote file tree starting at its
// RootFileID and returns the flattened, ordered set of targets to fetch.
//
// The walk re-fetches (parent, children) for every node it visits,
// including the root: the node currently being visited is classified by
// its own file_type, not by the type its parent inferred for it when
// listing. A FOLDER node emits a Directory target and recurses into each
// child; a VIDEO or recognized-subtitle node emits a File target; anything
// else is dropped silently. Exactly the outermost node that ends up
// emitting a target carries TopLevel — the root's own File target for a
// single-file transfer, or the root's Directory target otherwise.
func (p *Planner) Plan(ctx context.Context, t *Transfer) ([]*DownloadTarget, error) {
	var targets []*DownloadTarget
	if err := p.walk(ctx, t, t.RootFileID, p.downloadRoot, true, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func (p *Planner) walk(ctx context.Context, t *Transfer, nodeID int64, base string, topLevel bool, out *[]*DownloadTarget) error {
	node, children, err := p.remote.ListFiles(ctx, nodeID)
	if err != nil {
		return NewPlanError(t.ID, "list node", err)
	}

	if nodeID == t.RootFileID && t.SaveParentID != 0 && node.ParentID != 0 && node.ParentID != t.SaveParentID {
		// The remote listing wasn't scoped server-side (or scoping was
		// bypassed upstream): reject rather than silently fetch into the
		// wrong place.
		return NewPlanError(t.ID, "root parent mismatch", errRootParentMismatch)
	}

	localPath := filepath.Join(base, node.Name)

	if node.IsDir {
		if shouldSkipDirectory(node.Name, p.skipDirs) {
			// Outer-only filter: a skip-matching folder elides its entire
			// subtree regardless of what is inside it.
			log.Debug("planner").Str("dir", node.Name).Int64("transfer_id", t.ID).Msg("skipping directory")
			return nil
		}

		var childTargets []*DownloadTarget
		for _, child := range children {
			if err := p.walk(ctx, t, child.ID, localPath, false, &childTargets); err != nil {
				return err
			}
		}
		if len(childTargets) == 0 {
			// Empty-folder suppression: nothing beneath this folder
			// survived classification or skip filtering, so emitting a
			// directory for it would create an empty shell on disk.
			return nil
		}

		*out = append(*out, &DownloadTarget{
			RemoteFileID: nodeID,
			RemoteName:   node.Name,
			LocalPath:    localPath,
			Kind:         KindFolder,
			TopLevel:     topLevel,
		})
		*out = append(*out, childTargets...)
		return nil
	}

	kind, ok := classify(node)
	if !ok {
		if topLevel {
			log.Debug("planner").Str("file", node.Name).Int64("transfer_id", t.ID).Msg("dropping unclassified root file")
		}
		return nil
	}

	*out = append(*out, &DownloadTarget{
		RemoteFileID: nodeID,
		RemoteName:   node.Name,
		LocalPath:    localPath,
		Kind:         kind,
		Size:         node.Size,
		TopLevel:     topLevel,
	})
	return nil
}
