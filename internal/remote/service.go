// Package remote wraps the Google Drive and Slides APIs behind the small set of
// calls the deck builder needs.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"

	"github.com/smorand/google-slides-deckbuilder/internal/retry"
)

// Service is the provider capability used by the generator.
type Service interface {
	CopyFile(ctx context.Context, sourceID, newName, folderID string) (string, error)
	RenameFile(ctx context.Context, fileID, newName string) error
	GetPresentation(ctx context.Context, fileID string) (*Deck, error)
	BatchEdit(ctx context.Context, fileID string, ops []Operation) error
	DeleteSlides(ctx context.Context, fileID string, slideIDs []string) error
}

// Deck is the slide graph of a presentation: slide object ids in display order.
type Deck struct {
	ID       string
	Title    string
	SlideIDs []string
}

// SlideCount returns the number of slides.
func (d *Deck) SlideCount() int {
	return len(d.SlideIDs)
}

// DriveAPI abstracts the Drive file calls for testing.
type DriveAPI interface {
	CopyFile(ctx context.Context, fileID string, file *drive.File) (*drive.File, error)
	UpdateFile(ctx context.Context, fileID string, file *drive.File) (*drive.File, error)
}

// SlidesAPI abstracts the Slides presentation calls for testing.
type SlidesAPI interface {
	GetPresentation(ctx context.Context, presentationID string) (*slides.Presentation, error)
	BatchUpdate(ctx context.Context, presentationID string, requests []*slides.Request) (*slides.BatchUpdatePresentationResponse, error)
}

// DriveAPIFactory creates a Drive client from a token source.
type DriveAPIFactory func(ctx context.Context, tokenSource oauth2.TokenSource) (DriveAPI, error)

// SlidesAPIFactory creates a Slides client from a token source.
type SlidesAPIFactory func(ctx context.Context, tokenSource oauth2.TokenSource) (SlidesAPI, error)

type realDriveAPI struct {
	service *drive.Service
}

func (d *realDriveAPI) CopyFile(ctx context.Context, fileID string, file *drive.File) (*drive.File, error) {
	return d.service.Files.Copy(fileID, file).
		Fields("id,name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

func (d *realDriveAPI) UpdateFile(ctx context.Context, fileID string, file *drive.File) (*drive.File, error) {
	return d.service.Files.Update(fileID, file).
		Fields("id,name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// NewRealDriveAPIFactory returns a factory that creates real Drive clients.
func NewRealDriveAPIFactory() DriveAPIFactory {
	return func(ctx context.Context, tokenSource oauth2.TokenSource) (DriveAPI, error) {
		service, err := drive.NewService(ctx, option.WithTokenSource(tokenSource))
		if err != nil {
			return nil, err
		}
		return &realDriveAPI{service: service}, nil
	}
}

type realSlidesAPI struct {
	service *slides.Service
}

func (s *realSlidesAPI) GetPresentation(ctx context.Context, presentationID string) (*slides.Presentation, error) {
	return s.service.Presentations.Get(presentationID).
		Fields("presentationId,title,slides(objectId)").
		Context(ctx).
		Do()
}

func (s *realSlidesAPI) BatchUpdate(ctx context.Context, presentationID string, requests []*slides.Request) (*slides.BatchUpdatePresentationResponse, error) {
	return s.service.Presentations.BatchUpdate(presentationID, &slides.BatchUpdatePresentationRequest{
		Requests: requests,
	}).Context(ctx).Do()
}

// NewRealSlidesAPIFactory returns a factory that creates real Slides clients.
func NewRealSlidesAPIFactory() SlidesAPIFactory {
	return func(ctx context.Context, tokenSource oauth2.TokenSource) (SlidesAPI, error) {
		service, err := slides.NewService(ctx, option.WithTokenSource(tokenSource))
		if err != nil {
			return nil, err
		}
		return &realSlidesAPI{service: service}, nil
	}
}

// Config holds configuration for GoogleService.
type Config struct {
	Retry  retry.Config
	Logger *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Retry:  retry.DefaultConfig(),
		Logger: slog.Default(),
	}
}

// GoogleService implements Service on top of Drive and Slides for one user.
// Clients are created on first use.
type GoogleService struct {
	config        Config
	tokenSource   oauth2.TokenSource
	driveFactory  DriveAPIFactory
	slidesFactory SlidesAPIFactory
	copyRetryer   *retry.Retryer

	mu        sync.Mutex
	driveAPI  DriveAPI
	slidesAPI SlidesAPI
}

// NewGoogleService creates a service acting with the user's token source.
// Nil factories fall back to the real Google clients.
func NewGoogleService(config Config, tokenSource oauth2.TokenSource, driveFactory DriveAPIFactory, slidesFactory SlidesAPIFactory) *GoogleService {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if driveFactory == nil {
		driveFactory = NewRealDriveAPIFactory()
	}
	if slidesFactory == nil {
		slidesFactory = NewRealSlidesAPIFactory()
	}

	retryConfig := config.Retry
	retryConfig.Retryable = isCopyRetryable
	if retryConfig.Logger == nil {
		retryConfig.Logger = config.Logger
	}

	return &GoogleService{
		config:        config,
		tokenSource:   tokenSource,
		driveFactory:  driveFactory,
		slidesFactory: slidesFactory,
		copyRetryer:   retry.New(retryConfig),
	}
}

func (s *GoogleService) driveClient(ctx context.Context) (DriveAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driveAPI == nil {
		api, err := s.driveFactory(ctx, s.tokenSource)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create drive client: %v", ErrProvider, err)
		}
		s.driveAPI = api
	}
	return s.driveAPI, nil
}

func (s *GoogleService) slidesClient(ctx context.Context) (SlidesAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slidesAPI == nil {
		api, err := s.slidesFactory(ctx, s.tokenSource)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create slides client: %v", ErrProvider, err)
		}
		s.slidesAPI = api
	}
	return s.slidesAPI, nil
}

// CopyFile copies sourceID into folderID under newName and returns the new file id.
// Transient failures are retried under the configured budget; once exhausted the
// error wraps ErrFatalCopy together with the last provider error.
func (s *GoogleService) CopyFile(ctx context.Context, sourceID, newName, folderID string) (string, error) {
	if sourceID == "" || newName == "" {
		return "", fmt.Errorf("%w: source id and name are required", ErrInvalidArgument)
	}

	api, err := s.driveClient(ctx)
	if err != nil {
		return "", err
	}

	file := &drive.File{Name: newName}
	if folderID != "" {
		file.Parents = []string{folderID}
	}

	s.config.Logger.Info("copying file",
		slog.String("source_id", sourceID),
		slog.String("name", newName),
		slog.String("folder_id", folderID),
	)

	copied, err := retry.DoWithResult(ctx, s.copyRetryer, func(ctx context.Context) (*drive.File, error) {
		return api.CopyFile(ctx, sourceID, file)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		classified := Classify(err)
		if errors.Is(classified, ErrTransient) {
			return "", fmt.Errorf("%w: %w", ErrFatalCopy, classified)
		}
		return "", classified
	}

	s.config.Logger.Info("file copied",
		slog.String("source_id", sourceID),
		slog.String("file_id", copied.Id),
	)
	return copied.Id, nil
}

// RenameFile changes a file's name.
func (s *GoogleService) RenameFile(ctx context.Context, fileID, newName string) error {
	if fileID == "" || newName == "" {
		return fmt.Errorf("%w: file id and name are required", ErrInvalidArgument)
	}

	api, err := s.driveClient(ctx)
	if err != nil {
		return err
	}

	if _, err := api.UpdateFile(ctx, fileID, &drive.File{Name: newName}); err != nil {
		return Classify(err)
	}

	s.config.Logger.Info("file renamed",
		slog.String("file_id", fileID),
		slog.String("name", newName),
	)
	return nil
}

// GetPresentation fetches the slide graph of a presentation.
func (s *GoogleService) GetPresentation(ctx context.Context, fileID string) (*Deck, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is required", ErrInvalidArgument)
	}

	api, err := s.slidesClient(ctx)
	if err != nil {
		return nil, err
	}

	presentation, err := api.GetPresentation(ctx, fileID)
	if err != nil {
		return nil, Classify(err)
	}

	deck := &Deck{
		ID:       presentation.PresentationId,
		Title:    presentation.Title,
		SlideIDs: make([]string, 0, len(presentation.Slides)),
	}
	if deck.ID == "" {
		deck.ID = fileID
	}
	for _, slide := range presentation.Slides {
		deck.SlideIDs = append(deck.SlideIDs, slide.ObjectId)
	}
	return deck, nil
}

// BatchEdit applies ops in one round trip. A provider failure is reported for the
// whole call; edits the provider already applied are not rolled back.
func (s *GoogleService) BatchEdit(ctx context.Context, fileID string, ops []Operation) error {
	if fileID == "" {
		return fmt.Errorf("%w: file id is required", ErrInvalidArgument)
	}
	if len(ops) == 0 {
		return nil
	}

	api, err := s.slidesClient(ctx)
	if err != nil {
		return err
	}

	if _, err := api.BatchUpdate(ctx, fileID, buildRequests(ops)); err != nil {
		return Classify(err)
	}

	s.config.Logger.Debug("batch edit applied",
		slog.String("file_id", fileID),
		slog.Int("operations", len(ops)),
	)
	return nil
}

// DeleteSlides removes the given slides in one batch edit.
func (s *GoogleService) DeleteSlides(ctx context.Context, fileID string, slideIDs []string) error {
	ops := make([]Operation, 0, len(slideIDs))
	for _, id := range slideIDs {
		ops = append(ops, DeleteSlide{SlideID: id})
	}
	return s.BatchEdit(ctx, fileID, ops)
}

// Ensure GoogleService implements Service.
var _ Service = (*GoogleService)(nil)
