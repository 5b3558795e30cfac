package engine

import "context"

// RemoteFile is the engine's view of a put.io file or folder, independent
// of the concrete client library's own type.
type RemoteFile struct {
	ID          int64
	ParentID    int64
	Name        string
	Size        int64
	IsDir       bool
	FileType    string
	ContentType string
}

// RemoteTransfer is the engine's view of a put.io transfer.
type RemoteTransfer struct {
	ID           int64
	Hash         string
	Name         string
	Status       RemoteStatus
	SaveParentID int64
	FileID       int64
	ErrorMessage string
}

// RemoteClient is the capability surface the engine needs from put.io. It
// is satisfied by *putio.Client; engine code only ever depends on this
// interface so it can be exercised against a fake in tests.
type RemoteClient interface {
	ListTransfers(ctx context.Context) ([]RemoteTransfer, error)
	GetTransfer(ctx context.Context, id int64) (RemoteTransfer, error)
	ListFiles(ctx context.Context, parentID int64) (parent RemoteFile, files []RemoteFile, err error)
	FileURL(ctx context.Context, fileID int64) (string, error)
	DeleteTransfer(ctx context.Context, id int64) error
	DeleteFile(ctx context.Context, id int64) error
}

// ImportChecker is the capability surface the engine needs from the Arr
// integration: given a local path, has any configured Arr service recorded
// it as imported.
type ImportChecker interface {
	CheckImported(ctx context.Context, path string) (bool, string, error)
}

// Fetcher downloads a single remote file to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, fileID int64, url string, localPath string, size int64) error
}
