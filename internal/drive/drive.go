// Package drive uploads reposted media to a Google Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/repost"
)

const (
	folderMime    = "application/vnd.google-apps.folder"
	DefaultFolder = "Instagram_Bot_Data"
)

// Options configures New.
type Options struct {
	// CredentialsFile is a service account key (GOOGLE_DRIVE_CREDENTIALS).
	CredentialsFile string
	// CredentialsJSON is the decoded key (GOOGLE_DRIVE_CREDENTIALS_BASE64);
	// it wins over CredentialsFile.
	CredentialsJSON []byte
	// Folder is the root folder name, created when missing.
	Folder string
	// ClientOptions replace the credentials file when set.
	ClientOptions []option.ClientOption
}

// Publisher stores each repost in its own sub-folder: the media files plus
// caption.txt.
type Publisher struct {
	svc    *gdrive.Service
	folder string

	mu     sync.Mutex
	rootID string
}

// New builds the Drive client. The root folder is resolved on first use.
func New(ctx context.Context, opts Options) (*Publisher, error) {
	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		switch {
		case len(opts.CredentialsJSON) > 0:
			clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.CredentialsJSON))
		case opts.CredentialsFile != "":
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		default:
			return nil, errors.New("drive: GOOGLE_DRIVE_CREDENTIALS is required")
		}
		clientOpts = append(clientOpts, option.WithScopes(gdrive.DriveFileScope))
	}
	svc, err := gdrive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("drive: new service: %w", err)
	}
	folder := strings.TrimSpace(opts.Folder)
	if folder == "" {
		folder = DefaultFolder
	}
	return &Publisher{svc: svc, folder: folder}, nil
}

func (p *Publisher) Name() string { return "drive" }

// Publish uploads item's media and caption.
func (p *Publisher) Publish(ctx context.Context, item repost.Item) error {
	start := time.Now()
	rec := item.Record
	uploaded, err := p.publish(ctx, item)
	attrs := []slog.Attr{
		slog.String("event", "drive.upload"),
		slog.String("shortcode", rec.Shortcode),
		slog.Int("files", uploaded),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Drive.LogAttrs(ctx, slog.LevelWarn, "drive upload failed", attrs...)
		return err
	}
	logger.Drive.LogAttrs(ctx, slog.LevelInfo, "drive upload", attrs...)
	return nil
}

func (p *Publisher) publish(ctx context.Context, item repost.Item) (int, error) {
	rootID, err := p.root(ctx)
	if err != nil {
		return 0, err
	}
	rec := item.Record
	name := rec.Shortcode
	if rec.Author != "" {
		name = rec.Author + "_" + rec.Shortcode
	}
	dir, err := p.svc.Files.Create(&gdrive.File{Name: name, MimeType: folderMime, Parents: []string{rootID}}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("drive: create folder %s: %w", name, err)
	}

	n := 0
	for _, m := range rec.Media {
		if err := p.upload(ctx, dir.Id, m.Path); err != nil {
			return n, err
		}
		n++
	}
	_, err = p.svc.Files.Create(&gdrive.File{Name: "caption.txt", Parents: []string{dir.Id}}).
		Media(strings.NewReader(item.Caption)).Fields("id").Context(ctx).Do()
	if err != nil {
		return n, fmt.Errorf("drive: upload caption: %w", err)
	}
	return n + 1, nil
}

func (p *Publisher) upload(ctx context.Context, parentID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("drive: open %s: %w", path, err)
	}
	defer f.Close()
	_, err = p.svc.Files.Create(&gdrive.File{Name: filepath.Base(path), Parents: []string{parentID}}).
		Media(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive: upload %s: %w", filepath.Base(path), err)
	}
	return nil
}

// root finds or creates the root folder once.
func (p *Publisher) root(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rootID != "" {
		return p.rootID, nil
	}
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(p.folder, "'", `\'`), folderMime)
	list, err := p.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: find folder %s: %w", p.folder, err)
	}
	if len(list.Files) > 0 {
		p.rootID = list.Files[0].Id
		return p.rootID, nil
	}
	created, err := p.svc.Files.Create(&gdrive.File{Name: p.folder, MimeType: folderMime}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: create folder %s: %w", p.folder, err)
	}
	logger.Drive.LogAttrs(ctx, slog.LevelInfo, "root folder created",
		slog.String("event", "drive.folder"),
		slog.String("folder", p.folder),
	)
	p.rootID = created.Id
	return p.rootID, nil
}
