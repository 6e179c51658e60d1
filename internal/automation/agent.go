// Package automation defines the capability that performs on-platform actions
// on the engine's behalf. Implementations own navigation, page parsing and
// their own timeouts.
package automation

import (
	"context"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

type Agent interface {
	Login(ctx context.Context) error
	FetchBirthdayContacts(ctx context.Context) ([]domain.Contact, error)
	FetchUnreadMessages(ctx context.Context) ([]domain.Message, error)
	SendWish(ctx context.Context, c domain.Contact) error
	SendReply(ctx context.Context, m domain.Message, text string) error
	FetchFollowerCount(ctx context.Context, profileURL string) (int, error)
}
