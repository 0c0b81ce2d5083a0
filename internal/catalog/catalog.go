// Package catalog registers artworks and users. It stands in for the
// moderation and account services the auction engine consults, so a single
// binary can be driven end to end.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// Service handles artwork and user registration.
type Service struct {
	artworks store.ArtworkRepository
	users    store.UserRepository
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService returns a new catalog Service.
func NewService(artworks store.ArtworkRepository, users store.UserRepository, logger *slog.Logger, tp trace.TracerProvider) *Service {
	return &Service{
		artworks: artworks,
		users:    users,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/art-auction/internal/catalog"),
	}
}

// CreateArtwork registers an unapproved artwork by artistID.
func (s *Service) CreateArtwork(ctx context.Context, artistID, title string) (*store.Artwork, error) {
	ctx, span := s.tracer.Start(ctx, "Service.CreateArtwork",
		trace.WithAttributes(attribute.String("artist.id", artistID)),
	)
	defer span.End()

	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return nil, fmt.Errorf("artist id: %w", auction.ErrMissingField)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title: %w", auction.ErrMissingField)
	}

	a := &store.Artwork{ArtistID: artistID, Title: title}
	if err := s.artworks.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("creating artwork: %w", err)
	}

	s.logger.InfoContext(ctx, "artwork registered",
		slog.String("artwork_id", a.ID),
		slog.String("artist_id", artistID),
	)
	return a, nil
}

// GetArtwork returns the artwork with the given id.
func (s *Service) GetArtwork(ctx context.Context, id string) (*store.Artwork, error) {
	ctx, span := s.tracer.Start(ctx, "Service.GetArtwork",
		trace.WithAttributes(attribute.String("artwork.id", id)),
	)
	defer span.End()

	return s.artworks.GetByID(ctx, id)
}

// SetApproval records the moderation decision for an artwork.
func (s *Service) SetApproval(ctx context.Context, id string, approved bool) (*store.Artwork, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SetApproval",
		trace.WithAttributes(
			attribute.String("artwork.id", id),
			attribute.Bool("approved", approved),
		),
	)
	defer span.End()

	if err := s.artworks.SetApproved(ctx, id, approved); err != nil {
		return nil, fmt.Errorf("setting approval: %w", err)
	}
	a, err := s.artworks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "artwork moderated",
		slog.String("artwork_id", id),
		slog.Bool("approved", approved),
	)
	return a, nil
}

// CreateUser registers a user account.
func (s *Service) CreateUser(ctx context.Context, name string) (*store.User, error) {
	ctx, span := s.tracer.Start(ctx, "Service.CreateUser")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name: %w", auction.ErrMissingField)
	}

	u := &store.User{Name: name}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", u.ID))
	return u, nil
}
