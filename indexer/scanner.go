package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"meetchain-backend/contracts"
	"meetchain-backend/models"
)

// Scanner builds read models by walking the monotonically increasing
// event-ID space. Every invocation re-scans from ID 1: there is no
// pagination and no cross-call cache, which bounds how large the ledger
// can grow before scans become too expensive. That ceiling is accepted
// rather than papered over with caching that would change what callers
// observe.
type Scanner struct {
	ledger   contracts.Ledger
	metadata MetadataFetcher
}

// MetadataFetcher mirrors ipfs.MetadataFetcher without importing it, so
// tests can fake the gateway.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, cid string) (*models.EventMetadata, error)
}

func NewScanner(ledger contracts.Ledger, metadata MetadataFetcher) *Scanner {
	return &Scanner{ledger: ledger, metadata: metadata}
}

// LoadEvent is the single-event read model: header plus the current
// encrypted-counter handle. Not-found and transport failures stay
// distinguishable via errors.Is(err, contracts.ErrEventNotFound).
func (s *Scanner) LoadEvent(ctx context.Context, id int64) (*models.EventDetail, error) {
	header, err := s.ledger.GetEventHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	handle, err := s.ledger.GetEncryptedCount(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.EventDetail{
		EventHeader: *header,
		Status:      header.Status(time.Now()),
		CountHandle: handle,
	}, nil
}

// ScanAll indexes every event on the ledger in ascending-ID order. A
// failing ID is omitted, never fatal: one malformed or unreadable event
// must not abort the scan. Metadata enrichment per ID is best-effort
// for the same reason; the gateway is an independent service.
func (s *Scanner) ScanAll(ctx context.Context) ([]models.IndexedEvent, error) {
	nextID, err := s.ledger.NextEventID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read nextEventId: %w", err)
	}

	now := time.Now()
	events := make([]models.IndexedEvent, 0, nextID-1)
	for id := int64(1); id < nextID; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, err := s.ledger.GetEventHeader(ctx, id)
		if err != nil {
			if !errors.Is(err, contracts.ErrEventNotFound) {
				log.Printf("Skipping event %d during scan: %v", id, err)
			}
			continue
		}

		indexed := models.IndexedEvent{
			EventHeader: *header,
			Status:      header.Status(now),
		}

		if s.metadata != nil && header.MetadataCID != "" {
			if meta, err := s.metadata.FetchMetadata(ctx, header.MetadataCID); err == nil {
				indexed.Title = meta.Title
				indexed.Location = meta.Location
				indexed.Description = meta.Description
			}
		}

		events = append(events, indexed)
	}

	return events, nil
}

// ScanClaims builds the per-user claim-eligibility table, one entry per
// readable event, in ascending-ID order. Failing IDs are omitted under
// the same best-effort policy as ScanAll.
func (s *Scanner) ScanClaims(ctx context.Context, user common.Address) ([]models.ClaimState, error) {
	nextID, err := s.ledger.NextEventID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read nextEventId: %w", err)
	}

	claims := make([]models.ClaimState, 0, nextID-1)
	for id := int64(1); id < nextID; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		canClaim, err := s.ledger.CanClaim(ctx, id, user)
		if err != nil {
			continue
		}
		hasSigned, err := s.ledger.HasSigned(ctx, id, user)
		if err != nil {
			continue
		}

		claims = append(claims, models.DeriveClaimState(id, hasSigned, canClaim))
	}

	return claims, nil
}
