package tools

import (
	"context"
	"log/slog"

	"github.com/planhub/planhub/internal/drive"
	"github.com/planhub/planhub/internal/localfs"
	"github.com/planhub/planhub/internal/memo"
	"github.com/planhub/planhub/internal/registry"
	"github.com/planhub/planhub/internal/weather"
)

// Default page sizes used when the caller omits limit, matching what
// the Drive adapter accepts.
const (
	defaultListLimit   = 20
	defaultSearchLimit = 10
)

// Config wires the dispatcher to its components.
type Config struct {
	Registry  *registry.Service
	Drive     *drive.Client
	Documents *localfs.Store
	Memos     *memo.Store
	Weather   *weather.Client
	Logger    *slog.Logger
	Audit     AuditRecorder
}

// New builds the dispatcher with the full operation table.
func New(cfg Config) *Dispatcher {
	d := newDispatcher(cfg.Logger, cfg.Audit)

	d.register(Operation{
		Name:        "participant_add",
		Description: "Register a participant in the event database",
		Args: []Arg{
			{Name: "identity", Type: ArgString, Description: "Unique identity, typically an email address", Required: true},
			{Name: "name", Type: ArgString, Description: "Display name", Required: true},
			{Name: "metadata", Type: ArgStringMap, Description: "Optional attributes such as company, role, phone"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Registry.Add(ctx, args.String("identity"), args.String("name"), args.StringMap("metadata"))
		},
	})

	d.register(Operation{
		Name:        "participant_lookup",
		Description: "Look up a participant by identity",
		Args: []Arg{
			{Name: "identity", Type: ArgString, Description: "Identity to look up", Required: true},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Registry.Lookup(ctx, args.String("identity"))
		},
	})

	d.register(Operation{
		Name:        "participant_list",
		Description: "List participants, optionally filtered by a substring of identity or name",
		Args: []Arg{
			{Name: "filter", Type: ArgString, Description: "Case-insensitive substring filter"},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			participants, err := cfg.Registry.List(ctx, args.String("filter"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"participants": participants, "count": len(participants)}, nil
		},
	})

	d.register(Operation{
		Name:        "participant_remove",
		Description: "Remove a participant and return the removed record",
		Args: []Arg{
			{Name: "identity", Type: ArgString, Description: "Identity to remove", Required: true},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			removed, err := cfg.Registry.Remove(ctx, args.String("identity"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"removed": removed}, nil
		},
	})

	d.register(Operation{
		Name:        "gdrive_list_files",
		Description: "List files in Google Drive, optionally scoped to a folder or a Drive query",
		Args: []Arg{
			{Name: "query", Type: ArgString, Description: "Drive query syntax, e.g. \"name contains 'event'\""},
			{Name: "folder_id", Type: ArgString, Description: "Restrict to children of this folder"},
			{Name: "limit", Type: ArgInt, Description: "Maximum results, 1-100 (default 20)"},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			files, err := cfg.Drive.ListFiles(ctx, args.String("query"), args.String("folder_id"), args.Int("limit", defaultListLimit))
			if err != nil {
				return nil, err
			}
			return map[string]any{"files": files, "count": len(files)}, nil
		},
	})

	d.register(Operation{
		Name:        "gdrive_search_files",
		Description: "Search Google Drive files by name",
		Args: []Arg{
			{Name: "search_term", Type: ArgString, Description: "Keyword to match against file names", Required: true},
			{Name: "limit", Type: ArgInt, Description: "Maximum results, 1-50 (default 10)"},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			files, err := cfg.Drive.SearchFiles(ctx, args.String("search_term"), args.Int("limit", defaultSearchLimit))
			if err != nil {
				return nil, err
			}
			return map[string]any{"files": files, "count": len(files)}, nil
		},
	})

	d.register(Operation{
		Name:        "gdrive_get_file",
		Description: "Get metadata for one Google Drive file",
		Args: []Arg{
			{Name: "file_id", Type: ArgString, Description: "Drive file ID", Required: true},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Drive.GetFile(ctx, args.String("file_id"))
		},
	})

	d.register(Operation{
		Name:        "gdrive_create_folder",
		Description: "Create a Google Drive folder. Not idempotent: repeating the call creates a second folder with the same name. Check for an existing folder first via gdrive_list_files or gdrive_search_files if that matters.",
		Args: []Arg{
			{Name: "name", Type: ArgString, Description: "Folder name, e.g. 'Tech Event 2026'", Required: true},
			{Name: "parent_folder_id", Type: ArgString, Description: "Parent folder ID (root when omitted)"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Drive.CreateFolder(ctx, args.String("name"), args.String("parent_folder_id"))
		},
	})

	d.register(Operation{
		Name:        "gdrive_upload_file",
		Description: "Upload a file to Google Drive",
		Args: []Arg{
			{Name: "name", Type: ArgString, Description: "File name with extension", Required: true},
			{Name: "content", Type: ArgString, Description: "File content", Required: true},
			{Name: "mime_type", Type: ArgString, Description: "MIME type, e.g. 'text/plain'", Required: true},
			{Name: "folder_id", Type: ArgString, Description: "Folder to upload into (root when omitted)"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Drive.UploadFile(ctx, args.String("name"), []byte(args.String("content")), args.String("mime_type"), args.String("folder_id"))
		},
	})

	d.register(Operation{
		Name:        "gdrive_delete_file",
		Description: "Permanently delete a Google Drive file (bypasses the trash)",
		Args: []Arg{
			{Name: "file_id", Type: ArgString, Description: "Drive file ID to delete", Required: true},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			fileID := args.String("file_id")
			if err := cfg.Drive.DeleteFile(ctx, fileID); err != nil {
				return nil, err
			}
			return map[string]any{"file_id": fileID, "deleted": true, "permanent": true}, nil
		},
	})

	d.register(Operation{
		Name:        "fs_list_documents",
		Description: "List local planning documents",
		ReadOnly:    true,
		run: func(ctx context.Context, args Args) (any, error) {
			names, err := cfg.Documents.List()
			if err != nil {
				return nil, err
			}
			return map[string]any{"files": names, "count": len(names)}, nil
		},
	})

	d.register(Operation{
		Name:        "fs_read_document",
		Description: "Read a local planning document",
		Args: []Arg{
			{Name: "filename", Type: ArgString, Description: "Document name", Required: true},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			content, err := cfg.Documents.Read(args.String("filename"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"filename": args.String("filename"), "content": content}, nil
		},
	})

	d.register(Operation{
		Name:        "fs_write_document",
		Description: "Write a local planning document, replacing any existing content",
		Args: []Arg{
			{Name: "filename", Type: ArgString, Description: "Document name", Required: true},
			{Name: "content", Type: ArgString, Description: "Document content", Required: true},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			if err := cfg.Documents.Write(args.String("filename"), args.String("content")); err != nil {
				return nil, err
			}
			return map[string]any{"filename": args.String("filename"), "saved": true}, nil
		},
	})

	d.register(Operation{
		Name:        "memo_save",
		Description: "Save a message to conversation memory",
		Args: []Arg{
			{Name: "message", Type: ArgString, Description: "Message content", Required: true},
			{Name: "role", Type: ArgString, Description: "Message role (default 'user')"},
		},
		run: func(ctx context.Context, args Args) (any, error) {
			total, err := cfg.Memos.Save(args.String("role"), args.String("message"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"total_messages": total}, nil
		},
	})

	d.register(Operation{
		Name:        "memo_recall",
		Description: "Recall recent conversation memory",
		ReadOnly:    true,
		run: func(ctx context.Context, args Args) (any, error) {
			history, total, err := cfg.Memos.Recall()
			if err != nil {
				return nil, err
			}
			return map[string]any{"history": history, "total_messages": total}, nil
		},
	})

	d.register(Operation{
		Name:        "memo_search",
		Description: "Search conversation memory",
		Args: []Arg{
			{Name: "query", Type: ArgString, Description: "Substring to search for", Required: true},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			results, err := cfg.Memos.Search(args.String("query"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"results": results, "count": len(results)}, nil
		},
	})

	d.register(Operation{
		Name:        "memo_clear",
		Description: "Clear conversation memory",
		run: func(ctx context.Context, args Args) (any, error) {
			if err := cfg.Memos.Clear(); err != nil {
				return nil, err
			}
			return map[string]any{"cleared": true}, nil
		},
	})

	d.register(Operation{
		Name:        "weather_check",
		Description: "Check current weather conditions for a city",
		Args: []Arg{
			{Name: "city", Type: ArgString, Description: "City name", Required: true},
			{Name: "country_code", Type: ArgString, Description: "ISO country code (default US)"},
		},
		ReadOnly: true,
		run: func(ctx context.Context, args Args) (any, error) {
			return cfg.Weather.Current(ctx, args.String("city"), args.String("country_code"))
		},
	})

	return d
}
