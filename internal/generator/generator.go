// Package generator sequences the creation of a customer deck: a background
// copy of the team's master deck, then text and logo substitution, removal of
// unselected sections and an optional companion plan copy.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/smorand/google-slides-deckbuilder/internal/catalog"
	"github.com/smorand/google-slides-deckbuilder/internal/remote"
)

// Sentinel errors for generation.
var (
	ErrAlreadyStarted    = errors.New("generator already started")
	ErrNotStarted        = errors.New("generator not started")
	ErrAlreadyInProgress = errors.New("generation already in progress")
	ErrInvalidRequest    = errors.New("invalid generation request")
	ErrCatalogMismatch   = errors.New("deck catalog does not match the master deck")
	ErrEditFailed        = errors.New("failed to configure the new deck")
	ErrCopyFailed        = errors.New("background copy of the master deck failed")
)

// Placeholder texts on the master deck.
const (
	placeholderCompany = "COMPANYNAME"
	placeholderAE      = "AEName"
	placeholderSE      = "SENAME"
	placeholderAgenda  = "AGENDAHERE"

	titleSlide  = 0
	agendaSlide = 1

	logoObjectID = "customerLogo"
)

// DeckURL returns the browser URL of a presentation.
func DeckURL(fileID string) string {
	return "https://docs.google.com/presentation/d/" + fileID + "/edit"
}

// LogoPlacement is an extra, team-specific place for the customer logo.
// When Placeholder is set every shape containing it is replaced by the logo;
// otherwise the logo is created on the slide at SlideIndex.
type LogoPlacement struct {
	SlideIndex  int               `yaml:"slide_index"`
	Placeholder string            `yaml:"placeholder"`
	Placement   *remote.Placement `yaml:"placement"`
}

// Team identifies the master deck a generation starts from.
type Team struct {
	ID             string
	MasterDeckID   string
	LogoPlacements []LogoPlacement
}

// Config holds configuration for a Generator.
type Config struct {
	Team                Team
	FolderID            string
	CompanionTemplateID string
	// TempName is the file name of the copy until the request is known.
	TempName        string
	DeckSuffix      string
	CompanionSuffix string
	// OnCopyError receives a failure of the background copy or read as soon
	// as it happens. When set, a Generate call queued behind the copy is not
	// told again.
	OnCopyError ErrorCallback
	Logger      *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		TempName:        "Deck Builder (in progress)",
		DeckSuffix:      " | Optimizely Overview",
		CompanionSuffix: " | Tech Validation Plan",
		Logger:          slog.Default(),
	}
}

// Snapshot is a point-in-time view of a Generator.
type Snapshot struct {
	State       State     `json:"state"`
	LastStatus  StatusTag `json:"last_status,omitempty"`
	FileID      string    `json:"file_id,omitempty"`
	DeckURL     string    `json:"deck_url,omitempty"`
	CompanionID string    `json:"companion_id,omitempty"`
	Err         error     `json:"-"`
}

// Generator drives one deck generation. Start begins the copy of the master
// deck; Generate may be called before the copy is ready and runs once it is.
type Generator struct {
	config  Config
	service remote.Service
	sink    StatusSink

	started   atomic.Bool
	submitted atomic.Bool

	// ready is closed once the copy and read resolve, successfully or not.
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	emitMu sync.Mutex

	mu          sync.RWMutex
	state       State
	lastStatus  StatusTag
	fileID      string
	deck        *remote.Deck
	prefetchErr error
	err         error
	companionID string
}

// New creates a Generator. A nil sink discards statuses.
func New(service remote.Service, config Config, sink StatusSink) *Generator {
	defaults := DefaultConfig()
	if config.TempName == "" {
		config.TempName = defaults.TempName
	}
	if config.DeckSuffix == "" {
		config.DeckSuffix = defaults.DeckSuffix
	}
	if config.CompanionSuffix == "" {
		config.CompanionSuffix = defaults.CompanionSuffix
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if sink == nil {
		sink = func(StatusTag, Info) {}
	}

	return &Generator{
		config:  config,
		service: service,
		sink:    sink,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		state:   StateNotStarted,
	}
}

// Start copies the master deck into the destination folder in the background.
// ctx bounds the background work and must outlive the caller's request.
func (g *Generator) Start(ctx context.Context) error {
	if g.config.Team.MasterDeckID == "" || g.config.FolderID == "" {
		return fmt.Errorf("%w: master deck and folder are required", ErrInvalidRequest)
	}
	if !g.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	g.config.Logger.Info("starting background copy",
		slog.String("team", g.config.Team.ID),
		slog.String("folder_id", g.config.FolderID),
	)

	go g.prefetch(ctx)
	return nil
}

// Generate applies req once the background copy is ready. It returns at once;
// progress goes to the status sink and a failure of any step to onError.
// Only one call per Generator is accepted. Once the background copy has
// failed, Generate returns ErrCopyFailed wrapping the cause.
func (g *Generator) Generate(ctx context.Context, req Request, onError ErrorCallback) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.WantsCompanion && g.config.CompanionTemplateID == "" {
		return fmt.Errorf("%w: no companion template configured", ErrInvalidRequest)
	}
	if !g.started.Load() {
		return ErrNotStarted
	}
	if err := g.copyError(); err != nil {
		return fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	if !g.submitted.CompareAndSwap(false, true) {
		return ErrAlreadyInProgress
	}
	if onError == nil {
		onError = func(error) {}
	}

	go g.run(ctx, req, onError)
	return nil
}

// Done is closed when the generation reaches FINISHED or FAILED.
func (g *Generator) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the generation is terminal and returns its error.
func (g *Generator) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (g *Generator) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		State:       g.state,
		LastStatus:  g.lastStatus,
		FileID:      g.fileID,
		CompanionID: g.companionID,
		Err:         g.err,
	}
	if g.fileID != "" {
		s.DeckURL = DeckURL(g.fileID)
	}
	return s
}

func (g *Generator) prefetch(ctx context.Context) {
	g.setState(StateCopying)
	g.emit(StatusBackground, Info{})

	fileID, err := g.service.CopyFile(ctx, g.config.Team.MasterDeckID, g.config.TempName, g.config.FolderID)
	if err != nil {
		g.failPrefetch(err)
		return
	}

	g.mu.Lock()
	g.fileID = fileID
	g.mu.Unlock()
	g.emit(StatusAccessingNewDeck, Info{FileID: fileID})

	g.setState(StateReadingCopy)
	deck, err := g.service.GetPresentation(ctx, fileID)
	if err != nil {
		g.failPrefetch(err)
		return
	}

	g.mu.Lock()
	g.deck = deck
	g.state = StateReady
	g.mu.Unlock()
	close(g.ready)

	g.config.Logger.Info("master deck copy ready",
		slog.String("file_id", fileID),
		slog.Int("slides", deck.SlideCount()),
	)
}

// failPrefetch records a copy or read failure, releases the ready gate and
// reports the failure through OnCopyError before the generation is done.
func (g *Generator) failPrefetch(err error) {
	g.config.Logger.Error("background copy failed", slog.String("error", err.Error()))

	g.mu.Lock()
	g.prefetchErr = err
	g.err = err
	g.state = StateFailed
	g.mu.Unlock()
	close(g.ready)

	if g.config.OnCopyError != nil {
		g.config.OnCopyError(err)
	}
	g.finish()
}

// copyError returns the background copy failure once the copy has resolved.
func (g *Generator) copyError() error {
	select {
	case <-g.ready:
	default:
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.prefetchErr
}

func (g *Generator) run(ctx context.Context, req Request, onError ErrorCallback) {
	select {
	case <-g.ready:
	default:
		g.emit(StatusWaiting, Info{})
		select {
		case <-g.ready:
		case <-ctx.Done():
			g.fail(ctx.Err(), onError)
			return
		}
	}

	g.mu.RLock()
	prefetchErr, deck, fileID := g.prefetchErr, g.deck, g.fileID
	g.mu.RUnlock()

	if prefetchErr != nil {
		if g.config.OnCopyError == nil {
			onError(prefetchErr)
		}
		return
	}

	for _, s := range req.Chosen {
		g.emit(StatusDeckSelected, Info{Section: s.Title})
	}
	g.setState(StateConfiguring)
	g.emit(StatusConfiguringSlides, Info{FileID: fileID})

	ops, deletions, err := g.plan(req, deck)
	if err != nil {
		g.fail(err, onError)
		return
	}

	var companionDone atomic.Bool
	eg, egCtx := errgroup.WithContext(ctx)

	if req.WantsCompanion {
		eg.Go(func() error {
			defer companionDone.Store(true)
			name := FileName(req.CustomerName, g.config.CompanionSuffix)
			id, err := g.service.CopyFile(egCtx, g.config.CompanionTemplateID, name, g.config.FolderID)
			if err != nil {
				return fmt.Errorf("%w: copy companion plan: %w", ErrEditFailed, err)
			}
			g.mu.Lock()
			g.companionID = id
			g.mu.Unlock()
			g.config.Logger.Info("companion plan copied", slog.String("file_id", id))
			return nil
		})
	}

	eg.Go(func() error {
		if err := g.configure(egCtx, fileID, req, ops, deletions); err != nil {
			return err
		}
		if req.WantsCompanion && !companionDone.Load() {
			g.setState(StateCopyingCompanion)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		g.fail(err, onError)
		return
	}

	g.mu.Lock()
	g.state = StateFinished
	companionID := g.companionID
	g.mu.Unlock()

	g.config.Logger.Info("deck generated",
		slog.String("file_id", fileID),
		slog.String("companion_id", companionID),
	)
	g.emit(StatusFinished, Info{FileID: fileID, DeckURL: DeckURL(fileID), CompanionID: companionID})
	g.finish()
}

// plan builds the edit batch and the deletion set against the pre-deletion
// slide graph, before any remote call is made.
func (g *Generator) plan(req Request, deck *remote.Deck) ([]remote.Operation, []string, error) {
	total := catalog.TotalSlides(req.Chosen) + catalog.TotalSlides(req.Deleted)
	if total != deck.SlideCount() {
		return nil, nil, fmt.Errorf("%w: sections cover %d slides, deck has %d",
			ErrCatalogMismatch, total, deck.SlideCount())
	}
	if deck.SlideCount() <= agendaSlide {
		return nil, nil, fmt.Errorf("%w: deck needs a title and an agenda slide", ErrCatalogMismatch)
	}

	ops, err := g.editOperations(req, deck)
	if err != nil {
		return nil, nil, err
	}

	deletions, err := DeletionSet(deck.SlideIDs, req.Deleted)
	if err != nil {
		return nil, nil, err
	}
	return ops, deletions, nil
}

func (g *Generator) editOperations(req Request, deck *remote.Deck) ([]remote.Operation, error) {
	title := deck.SlideIDs[titleSlide]
	ops := []remote.Operation{
		remote.ReplaceText{SlideID: title, Search: placeholderCompany, Replacement: req.CustomerName},
		remote.ReplaceText{SlideID: title, Search: placeholderAE, Replacement: req.AEName},
		remote.ReplaceText{SlideID: title, Search: placeholderSE, Replacement: req.UserName},
		remote.ReplaceText{SlideID: deck.SlideIDs[agendaSlide], Search: placeholderAgenda, Replacement: AgendaText(req.Chosen)},
	}

	if req.LogoURL == "" {
		return ops, nil
	}

	ops = append(ops, remote.InsertImage{
		ObjectID:  logoObjectID,
		SlideID:   title,
		URL:       req.LogoURL,
		Placement: remote.TitleLogoPlacement,
	})

	for i, p := range g.config.Team.LogoPlacements {
		if p.Placeholder != "" {
			ops = append(ops, remote.ReplaceShapesWithImage{Placeholder: p.Placeholder, URL: req.LogoURL})
			continue
		}
		if p.SlideIndex < 0 || p.SlideIndex >= deck.SlideCount() {
			return nil, fmt.Errorf("%w: logo placement on slide %d, deck has %d",
				ErrCatalogMismatch, p.SlideIndex, deck.SlideCount())
		}
		placement := remote.TitleLogoPlacement
		if p.Placement != nil {
			placement = *p.Placement
		}
		ops = append(ops, remote.InsertImage{
			ObjectID:  fmt.Sprintf("%s%d", logoObjectID, i+1),
			SlideID:   deck.SlideIDs[p.SlideIndex],
			URL:       req.LogoURL,
			Placement: placement,
		})
	}
	return ops, nil
}

func (g *Generator) configure(ctx context.Context, fileID string, req Request, ops []remote.Operation, deletions []string) error {
	if err := g.service.BatchEdit(ctx, fileID, ops); err != nil {
		return fmt.Errorf("%w: update title and agenda: %w", ErrEditFailed, err)
	}

	name := FileName(req.CustomerName, g.config.DeckSuffix)
	if err := g.service.RenameFile(ctx, fileID, name); err != nil {
		return fmt.Errorf("%w: rename deck: %w", ErrEditFailed, err)
	}

	if len(deletions) == 0 {
		return nil
	}

	g.setState(StateDeleting)
	if err := g.service.DeleteSlides(ctx, fileID, deletions); err != nil {
		return fmt.Errorf("%w: delete unused slides: %w", ErrEditFailed, err)
	}
	g.config.Logger.Debug("unused slides deleted",
		slog.String("file_id", fileID),
		slog.Int("count", len(deletions)),
	)
	return nil
}

func (g *Generator) fail(err error, onError ErrorCallback) {
	g.config.Logger.Error("deck generation failed", slog.String("error", err.Error()))

	g.mu.Lock()
	g.err = err
	g.state = StateFailed
	g.mu.Unlock()

	onError(err)
	g.finish()
}

func (g *Generator) finish() {
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *Generator) setState(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Terminal() {
		g.state = s
	}
}

// emit serializes sink calls; the prefetch and the generation may both emit.
func (g *Generator) emit(tag StatusTag, info Info) {
	g.emitMu.Lock()
	defer g.emitMu.Unlock()

	g.mu.Lock()
	g.lastStatus = tag
	g.mu.Unlock()

	g.sink(tag, info)
}
