// Package permissions verifies that a user can create decks in a Drive folder.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
	"github.com/smorand/google-slides-deckbuilder/internal/remote"
)

// FolderMimeType is the Drive MIME type of folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// Sentinel errors for folder checks.
var (
	ErrFolderNotFound = errors.New("destination folder not found")
	ErrNotAFolder     = errors.New("destination is not a folder")
	ErrNoWriteAccess  = errors.New("user cannot add files to the destination folder")
	ErrFolderCheck    = errors.New("failed to check destination folder")
)

// CheckerConfig holds configuration for the folder checker.
type CheckerConfig struct {
	Cache  *cache.FolderCache // Shared cache; a private one is created when nil
	Logger *slog.Logger
}

// DefaultCheckerConfig returns default configuration.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		Logger: slog.Default(),
	}
}

// DriveServiceFactory creates a Drive service from a token source.
type DriveServiceFactory func(ctx context.Context, tokenSource oauth2.TokenSource) (DriveService, error)

// DriveService abstracts the Drive API for testing.
type DriveService interface {
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
}

// realDriveService wraps the actual Google Drive API.
type realDriveService struct {
	service *drive.Service
}

// GetFile retrieves folder metadata and the caller's capabilities on it.
func (s *realDriveService) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	return s.service.Files.Get(fileID).
		Fields("id,name,mimeType,trashed,capabilities(canAddChildren)").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// NewRealDriveServiceFactory returns a factory that creates real Drive services.
func NewRealDriveServiceFactory() DriveServiceFactory {
	return func(ctx context.Context, tokenSource oauth2.TokenSource) (DriveService, error) {
		service, err := drive.NewService(ctx, option.WithTokenSource(tokenSource))
		if err != nil {
			return nil, fmt.Errorf("failed to create drive service: %w", err)
		}
		return &realDriveService{service: service}, nil
	}
}

// Checker verifies destination folders before a generation starts.
type Checker struct {
	config              CheckerConfig
	driveServiceFactory DriveServiceFactory
}

// NewChecker creates a new folder checker.
func NewChecker(config CheckerConfig, factory DriveServiceFactory) *Checker {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Cache == nil {
		config.Cache = cache.NewFolderCache(cache.FolderCacheConfig{Logger: config.Logger})
	}
	if factory == nil {
		factory = NewRealDriveServiceFactory()
	}

	return &Checker{
		config:              config,
		driveServiceFactory: factory,
	}
}

// CheckFolder returns the folder when userEmail can add files to it.
func (c *Checker) CheckFolder(ctx context.Context, tokenSource oauth2.TokenSource, userEmail, folderID string) (*cache.FolderAccess, error) {
	access, err := c.folderAccess(ctx, tokenSource, userEmail, folderID)
	if err != nil {
		return nil, err
	}

	if !access.IsFolder {
		return nil, ErrNotAFolder
	}
	if !access.CanAddChildren {
		return nil, ErrNoWriteAccess
	}
	return access, nil
}

func (c *Checker) folderAccess(ctx context.Context, tokenSource oauth2.TokenSource, userEmail, folderID string) (*cache.FolderAccess, error) {
	if cached, ok := c.config.Cache.Get(userEmail, folderID); ok {
		c.config.Logger.Debug("folder cache hit",
			slog.String("user", userEmail),
			slog.String("folder_id", folderID),
		)
		return cached, nil
	}

	driveService, err := c.driveServiceFactory(ctx, tokenSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFolderCheck, remote.Classify(err))
	}

	file, err := driveService.GetFile(ctx, folderID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrFolderNotFound
		}
		// Expired credentials stay reachable as remote.ErrAuthExpired.
		return nil, fmt.Errorf("%w: %w", ErrFolderCheck, remote.Classify(err))
	}
	if file.Trashed {
		return nil, ErrFolderNotFound
	}

	access := &cache.FolderAccess{
		UserEmail:      userEmail,
		FolderID:       folderID,
		Name:           file.Name,
		IsFolder:       file.MimeType == FolderMimeType,
		CanAddChildren: file.Capabilities != nil && file.Capabilities.CanAddChildren,
	}
	c.config.Cache.Set(access)

	c.config.Logger.Debug("folder check complete",
		slog.String("user", userEmail),
		slog.String("folder_id", folderID),
		slog.Bool("is_folder", access.IsFolder),
		slog.Bool("can_add_children", access.CanAddChildren),
	)
	return access, nil
}

// InvalidateCache removes the cached check for a user and folder.
func (c *Checker) InvalidateCache(userEmail, folderID string) {
	c.config.Cache.Invalidate(userEmail, folderID)
}

// isNotFoundError reports a 404 from the Drive API.
func isNotFoundError(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
