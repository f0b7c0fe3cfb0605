// Package tier classifies chats into fast and slow notification tiers.
package tier

import (
	"context"
	"strconv"
)

// Checker reports whether a chat belongs to the fast tier. Lookups may
// hit a remote source, so errors are possible; callers should degrade
// to the slow tier on error rather than fail the sweep.
type Checker interface {
	IsFastTier(ctx context.Context, chatID string) (bool, error)
}

// Static is a Checker backed by a fixed allowlist of chat ids.
type Static struct {
	fast map[string]struct{}
}

func NewStatic(fastChatIDs []int64) *Static {
	m := make(map[string]struct{}, len(fastChatIDs))
	for _, id := range fastChatIDs {
		m[strconv.FormatInt(id, 10)] = struct{}{}
	}
	return &Static{fast: m}
}

func (s *Static) IsFastTier(_ context.Context, chatID string) (bool, error) {
	_, ok := s.fast[chatID]
	return ok, nil
}
