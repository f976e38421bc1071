package client

import (
	"context"
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// SearchClient computes fingerprints and runs substructure screens.
type SearchClient struct {
	client *Client
}

// Fingerprint computes the fingerprint of structure. An empty kind means
// KindStructure.
func (s *SearchClient) Fingerprint(ctx context.Context, structure, kind string) (*FingerprintResult, error) {
	if strings.TrimSpace(structure) == "" {
		return nil, errors.InvalidParam("client: structure is required")
	}
	var out FingerprintResult
	req := FingerprintRequest{Structure: structure, Kind: kind}
	if err := s.client.post(ctx, "/api/v1/fingerprints", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Substructure screens the index for molecules that may contain the query.
func (s *SearchClient) Substructure(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, errors.InvalidParam("client: query is required")
	}
	if req.MaxHits < 0 {
		return nil, errors.InvalidParam("client: max hits must not be negative")
	}
	var out SearchResult
	if err := s.client.post(ctx, "/api/v1/search/substructure", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

//Personal.AI order the ending
