package ytstreams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/ytstreams/agent"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/types"
	"github.com/ytget/ytstreams/youtube/cipher"
	"github.com/ytget/ytstreams/youtube/formats"
	"github.com/ytget/ytstreams/youtube/watch"
)

const (
	// DefaultPlatformOrigin resolves relative assets.js references.
	DefaultPlatformOrigin = "https://www.youtube.com"
	// DefaultFallbackScript is used when the player response names no script.
	DefaultFallbackScript = "https://www.youtube.com/s/player/69b31e11/player-plasma-ias-tablet-en_US.vflset/base.js"

	defaultScriptTimeout = 30 * time.Second
)

// StateReader exposes the current session snapshot.
type StateReader = watch.StateReader

// Config holds Service parameters. Zero values use defaults.
type Config struct {
	Fetcher        watch.Config
	PlatformOrigin string
	FallbackScript string
	// Decipherer defaults to a cipher.Engine with its own HTTP client.
	Decipherer cipher.Decipherer
	Logger     *logger.Logger
}

// Service resolves a video id into its deciphered stream list.
type Service struct {
	fetcher        *watch.Fetcher
	decipherer     cipher.Decipherer
	platformOrigin string
	fallbackScript string
	log            *logger.ComponentLogger
}

// New wires a Service reading cookies from state.
func New(state StateReader, cfg Config) (*Service, error) {
	if cfg.Fetcher.Logger == nil {
		cfg.Fetcher.Logger = cfg.Logger
	}
	fetcher, err := watch.NewFetcher(state, cfg.Fetcher)
	if err != nil {
		return nil, err
	}

	origin := strings.TrimRight(cfg.PlatformOrigin, "/")
	if origin == "" {
		origin = DefaultPlatformOrigin
	}
	fallback := cfg.FallbackScript
	if fallback == "" {
		fallback = DefaultFallbackScript
	}
	if !strings.HasPrefix(fallback, "http://") && !strings.HasPrefix(fallback, "https://") {
		return nil, fmt.Errorf("%w: fallback player script must be an absolute url: %q", errs.ErrConfiguration, fallback)
	}

	dec := cfg.Decipherer
	if dec == nil {
		client, err := agent.NewHTTPClient(cfg.Fetcher.Proxy, defaultScriptTimeout)
		if err != nil {
			return nil, err
		}
		dec = cipher.New(client, cipher.WithLogger(cfg.Logger))
	}

	return &Service{
		fetcher:        fetcher,
		decipherer:     dec,
		platformOrigin: origin,
		fallbackScript: fallback,
		log:            logger.For(cfg.Logger, logger.ComponentPipeline),
	}, nil
}

// Decipherer returns the collaborator used to resolve formats.
func (s *Service) Decipherer() cipher.Decipherer {
	return s.decipherer
}

// FetchPlayerResponse downloads and extracts the player response for videoID.
func (s *Service) FetchPlayerResponse(ctx context.Context, videoID string) (*watch.PlayerResponse, error) {
	return s.fetcher.FetchPlayerResponse(ctx, videoID)
}

// ResolveStreams fetches the watch page of videoID, collects progressive and
// adaptive formats in order and returns them deciphered. Nothing is cached.
func (s *Service) ResolveStreams(ctx context.Context, videoID string) (*types.StreamList, error) {
	pr, err := s.fetcher.FetchPlayerResponse(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return s.ResolvePlayerResponse(ctx, videoID, pr)
}

// ResolvePlayerResponse runs the format pipeline over an already fetched
// player response.
func (s *Service) ResolvePlayerResponse(ctx context.Context, videoID string, pr *watch.PlayerResponse) (*types.StreamList, error) {
	start := time.Now()
	if pr == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoStreamingData, videoID)
	}
	if pr.StreamingData == nil {
		s.log.Info("No streaming data", map[string]any{
			"video":  videoID,
			"status": pr.PlayabilityStatus.Status,
			"reason": pr.PlayabilityStatus.Reason,
		})
		return nil, fmt.Errorf("%w: %s", errs.ErrNoStreamingData, videoID)
	}

	all := formats.Collect(pr.StreamingData.Formats, pr.StreamingData.AdaptiveFormats)
	script := formats.ScriptRef(pr.ScriptPath(), s.platformOrigin, s.fallbackScript)

	resolved, err := s.decipherer.DecipherFormats(ctx, all, script, cipher.Options{})
	if err != nil {
		return nil, fmt.Errorf("decipher %s: %w", videoID, err)
	}
	if resolved == nil {
		resolved = []types.Descriptor{}
	}

	s.log.Debug("Streams resolved", map[string]any{
		"video":    videoID,
		"formats":  len(resolved),
		"script":   script,
		"duration": time.Since(start).String(),
	})
	return &types.StreamList{
		VideoID: videoID,
		Title:   pr.VideoDetails.Title,
		Formats: resolved,
	}, nil
}
